package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	chatservice "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/storage"
)

type stubResponder struct {
	reply string
	err   error
}

func (s stubResponder) Reply(context.Context, chat.ReplyRequest) (string, error) {
	return s.reply, s.err
}

func (s stubResponder) Describe(err error) string { return "Error: " + err.Error() }

func setup(t *testing.T, responder chatservice.Responder) (*httptest.Server, *chatservice.Coordinator, *storage.Hub) {
	t.Helper()
	hub := storage.NewHub(storage.NewMemoryStore(), nil)
	coordinator := chatservice.NewCoordinator(hub, responder, chatservice.Options{}, nil)
	t.Cleanup(coordinator.Close)

	r := chi.NewRouter()
	New(coordinator, hub, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, coordinator, hub
}

type event struct {
	name string
	data StreamResponse
}

func readEvents(t *testing.T, body *bufio.Scanner, limit int) []event {
	t.Helper()
	var out []event
	var name string
	for len(out) < limit && body.Scan() {
		line := body.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var resp StreamResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &resp); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			out = append(out, event{name: name, data: resp})
		}
	}
	return out
}

func names(events []event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.name
	}
	return out
}

func TestStreamReplaysReply(t *testing.T) {
	srv, coordinator, _ := setup(t, stubResponder{reply: "you are safe"})
	session, err := coordinator.NewConversation(context.Background(), chat.CategoryGeneral)
	if err != nil {
		t.Fatalf("NewConversation err: %v", err)
	}

	resp, err := http.Get(srv.URL + "/stream/" + session.ID + "?message=hello")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, bufio.NewScanner(resp.Body), 10)
	got := strings.Join(names(events), ",")
	if got != "start,delta,delta,delta,message,end" {
		t.Fatalf("unexpected events %s", got)
	}
	if events[3].data.Content != "you are safe" {
		t.Fatalf("expected last delta to hold full text, got %q", events[3].data.Content)
	}
	if events[4].data.Message == nil || events[4].data.Message.Role != chat.RoleAssistant {
		t.Fatalf("expected stored assistant message, got %+v", events[4].data.Message)
	}
}

func TestStreamEmptyMessageSendsWelcome(t *testing.T) {
	srv, coordinator, _ := setup(t, stubResponder{err: errors.New("must not be called")})
	session, _ := coordinator.NewConversation(context.Background(), chat.CategoryCrisis)

	resp, err := http.Get(srv.URL + "/stream/" + session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	events := readEvents(t, bufio.NewScanner(resp.Body), 10)
	var message *event
	for i := range events {
		if events[i].name == "message" {
			message = &events[i]
		}
		if events[i].name == "error" {
			t.Fatalf("unexpected error event: %+v", events[i].data)
		}
	}
	if message == nil || message.data.Content == "" {
		t.Fatalf("expected welcome message, got %v", names(events))
	}
}

func TestStreamBackendErrorEvent(t *testing.T) {
	srv, coordinator, _ := setup(t, stubResponder{err: errors.New("down")})
	session, _ := coordinator.NewConversation(context.Background(), chat.CategoryGeneral)

	resp, err := http.Get(srv.URL + "/stream/" + session.ID + "?message=hi")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	events := readEvents(t, bufio.NewScanner(resp.Body), 10)
	got := strings.Join(names(events), ",")
	if got != "start,error,end" {
		t.Fatalf("unexpected events %s", got)
	}
	if events[1].data.Error != "Error: down" {
		t.Fatalf("unexpected error text %q", events[1].data.Error)
	}
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _, _ := setup(t, nil)
	resp, err := http.Get(srv.URL + "/stream/missing?message=hi")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestEventsPushesSnapshots(t *testing.T) {
	srv, coordinator, _ := setup(t, stubResponder{reply: "noted"})
	session, _ := coordinator.NewConversation(context.Background(), chat.CategoryGeneral)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+session.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	first := readEvents(t, scanner, 1)
	if len(first) != 1 || first[0].name != "messages" || len(first[0].data.Messages) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", first)
	}

	if _, err := coordinator.SendTo(ctx, session.ID, "remember this"); err != nil {
		t.Fatalf("SendTo err: %v", err)
	}

	for {
		next := readEvents(t, scanner, 1)
		if len(next) == 0 {
			t.Fatal("stream ended before the reply arrived")
		}
		if next[0].name == "messages" && len(next[0].data.Messages) == 2 {
			break
		}
	}
}

func TestSessionEventsPushesSessionList(t *testing.T) {
	srv, coordinator, _ := setup(t, stubResponder{reply: "noted"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	first := readEvents(t, scanner, 1)
	if len(first) != 1 || first[0].name != "sessions" || len(first[0].data.Sessions) != 0 {
		t.Fatalf("expected empty initial session list, got %+v", first)
	}

	session, err := coordinator.NewConversation(ctx, chat.CategoryCrisis)
	if err != nil {
		t.Fatalf("NewConversation err: %v", err)
	}
	if _, err := coordinator.RenameConversation(ctx, session.ID, "Tonight"); err != nil {
		t.Fatalf("RenameConversation err: %v", err)
	}

	for {
		next := readEvents(t, scanner, 1)
		if len(next) == 0 {
			t.Fatal("stream ended before the rename arrived")
		}
		if next[0].name != "sessions" || len(next[0].data.Sessions) != 1 {
			continue
		}
		if got := next[0].data.Sessions[0]; got.ID == session.ID && got.Name == "Tonight" {
			return
		}
	}
}

func TestSessionEventsWithoutWatcher(t *testing.T) {
	coordinator := chatservice.NewCoordinator(storage.NewMemoryStore(), stubResponder{}, chatservice.Options{}, nil)
	t.Cleanup(coordinator.Close)
	r := chi.NewRouter()
	New(coordinator, nil, nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/events", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CLOUD_DRIVER", "none")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_ACCESS_KEY", "")
	t.Setenv("ARK_SECRET_KEY", "")
	t.Setenv("ARK_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("PLACES_API_KEY", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAssessAnxiety(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "assess", "anxiety", "0", "1", "2", "3", "Not at all", "Several days", "0")
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if !strings.Contains(out, "anxiety score: 7") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestAssessRejectsIncompleteAnswers(t *testing.T) {
	isolate(t)

	if _, _, err := execute(t, "assess", "stress", "0", "1"); err == nil {
		t.Fatal("expected an error for an unfinished questionnaire")
	}
	if _, _, err := execute(t, "assess", "phq9", "0"); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}

func TestChatPrintsRemoteReply(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["chat_type"] != "THERAPY" {
			t.Errorf("unexpected chat_type %v", body["chat_type"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "I'm here to listen."})
	}))
	defer srv.Close()
	t.Setenv("CHAT_BACKEND", "remote")
	t.Setenv("CHAT_BASE_URL", srv.URL)

	out, _, err := execute(t, "chat", "--category", "therapy", "I", "feel", "tired")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.TrimSpace(out) != "I'm here to listen." {
		t.Fatalf("unexpected reply %q", out)
	}
}

func TestChatReportsBackendFailure(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("CHAT_BACKEND", "remote")
	t.Setenv("CHAT_BASE_URL", srv.URL)

	_, errOut, err := execute(t, "chat", "hello?")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(errOut, "Server error occurred") {
		t.Fatalf("unexpected error text %q", errOut)
	}
}

func TestLookupsRequireKeys(t *testing.T) {
	isolate(t)

	if _, _, err := execute(t, "resources", "anxiety", "books"); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
	if _, _, err := execute(t, "places", "--lat", "1", "--lng", "2"); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

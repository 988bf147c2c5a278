package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/chat"
)

// Hub decorates a Store and pushes fresh snapshots to watchers after
// every mutation. Watch channels hold one snapshot; a slow reader only
// ever sees the latest one.
type Hub struct {
	Store
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*topic

	// sessionMu orders session list snapshots with their delivery.
	sessionMu   sync.Mutex
	sessionSubs map[chan []chat.Session]struct{}
}

// topic holds the watchers of one session. mu is held from the moment a
// snapshot is read until every watcher has been offered it, so watchers
// never see an older list after a newer one.
type topic struct {
	mu   sync.Mutex
	subs map[chan []chat.Message]struct{}
}

// NewHub wraps store.
func NewHub(store Store, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		Store:       store,
		logger:      logger.Named("hub"),
		topics:      make(map[string]*topic),
		sessionSubs: make(map[chan []chat.Session]struct{}),
	}
}

// lockTopic returns the locked topic of sessionID, creating it if needed.
func (h *Hub) lockTopic(sessionID string) *topic {
	for {
		h.mu.Lock()
		t, ok := h.topics[sessionID]
		if !ok {
			t = &topic{subs: make(map[chan []chat.Message]struct{})}
			h.topics[sessionID] = t
		}
		h.mu.Unlock()

		t.mu.Lock()
		h.mu.Lock()
		current := h.topics[sessionID] == t
		h.mu.Unlock()
		if current {
			return t
		}
		// Dropped while we waited for it.
		t.mu.Unlock()
	}
}

// dropIfIdle forgets t once nobody watches it. Callers hold t.mu.
func (h *Hub) dropIfIdle(sessionID string, t *topic) {
	if len(t.subs) > 0 {
		return
	}
	h.mu.Lock()
	if h.topics[sessionID] == t {
		delete(h.topics, sessionID)
	}
	h.mu.Unlock()
}

// WatchMessages streams the ordered message list of sessionID, starting
// with the current one. The channel closes when ctx ends.
func (h *Hub) WatchMessages(ctx context.Context, sessionID string) (<-chan []chat.Message, error) {
	t := h.lockTopic(sessionID)
	snapshot, err := h.Store.ListMessages(ctx, sessionID)
	if err != nil {
		h.dropIfIdle(sessionID, t)
		t.mu.Unlock()
		return nil, err
	}
	ch := make(chan []chat.Message, 1)
	ch <- snapshot
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, ch)
		close(ch)
		h.dropIfIdle(sessionID, t)
	}()
	return ch, nil
}

// WatchSessions streams the session list, newest first.
func (h *Hub) WatchSessions(ctx context.Context) (<-chan []chat.Session, error) {
	h.sessionMu.Lock()
	snapshot, err := h.Store.ListSessions(ctx)
	if err != nil {
		h.sessionMu.Unlock()
		return nil, err
	}
	ch := make(chan []chat.Session, 1)
	ch <- snapshot
	h.sessionSubs[ch] = struct{}{}
	h.sessionMu.Unlock()

	go func() {
		<-ctx.Done()
		h.sessionMu.Lock()
		defer h.sessionMu.Unlock()
		delete(h.sessionSubs, ch)
		close(ch)
	}()
	return ch, nil
}

func (h *Hub) CreateSession(ctx context.Context, session chat.Session) (chat.Session, error) {
	out, err := h.Store.CreateSession(ctx, session)
	if err == nil {
		h.publishSessions(ctx)
	}
	return out, err
}

func (h *Hub) RenameSession(ctx context.Context, id, name string) (chat.Session, error) {
	out, err := h.Store.RenameSession(ctx, id, name)
	if err == nil {
		h.publishSessions(ctx)
	}
	return out, err
}

func (h *Hub) DeleteSession(ctx context.Context, id string) error {
	if err := h.Store.DeleteSession(ctx, id); err != nil {
		return err
	}
	h.publishTopic(id, func() ([]chat.Message, error) { return []chat.Message{}, nil })
	h.publishSessions(ctx)
	return nil
}

func (h *Hub) UpdateLastMessage(ctx context.Context, id, content string, at time.Time) error {
	if err := h.Store.UpdateLastMessage(ctx, id, content, at); err != nil {
		return err
	}
	h.publishSessions(ctx)
	return nil
}

func (h *Hub) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	out, err := h.Store.AppendMessage(ctx, msg)
	if err != nil {
		return out, err
	}
	h.publishMessages(ctx, out.SessionID)
	h.publishSessions(ctx)
	return out, nil
}

func (h *Hub) DeleteMessage(ctx context.Context, id string) (chat.Message, error) {
	out, err := h.Store.DeleteMessage(ctx, id)
	if err != nil {
		return out, err
	}
	h.publishMessages(ctx, out.SessionID)
	return out, nil
}

func (h *Hub) publishMessages(ctx context.Context, sessionID string) {
	h.publishTopic(sessionID, func() ([]chat.Message, error) {
		return h.Store.ListMessages(context.WithoutCancel(ctx), sessionID)
	})
}

func (h *Hub) publishTopic(sessionID string, load func() ([]chat.Message, error)) {
	h.mu.Lock()
	t, ok := h.topics[sessionID]
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return
	}
	snapshot, err := load()
	if err != nil {
		h.logger.Warn("load message snapshot", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	for ch := range t.subs {
		offerLatest(ch, snapshot)
	}
}

func (h *Hub) publishSessions(ctx context.Context) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	if len(h.sessionSubs) == 0 {
		return
	}

	snapshot, err := h.Store.ListSessions(context.WithoutCancel(ctx))
	if err != nil {
		h.logger.Warn("load session snapshot", zap.Error(err))
		return
	}
	for ch := range h.sessionSubs {
		offerLatest(ch, snapshot)
	}
}

// offerLatest replaces any unread value in ch with v. Callers hold the
// lock that owns ch, so they are the only sender.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

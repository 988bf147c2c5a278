// Package chat coordinates conversations: sessions, the active one, and
// the turn flow between the local store and a responder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/model/chat"
	"github.com/helpyourself/companion/backend/internal/service/ai"
	"github.com/helpyourself/companion/backend/internal/service/remote"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/internal/telemetry"
	"github.com/helpyourself/companion/backend/pkg/utils"
)

var (
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrNameRequired         = errors.New("conversation name is required")
)

// Responder produces the assistant side of a turn.
type Responder interface {
	Reply(ctx context.Context, req chat.ReplyRequest) (string, error)
	// Describe turns a Reply error into the text shown to the user.
	Describe(err error) string
}

// StreamResponder can deliver a reply progressively.
type StreamResponder interface {
	Responder
	Stream(ctx context.Context, req chat.ReplyRequest, emit func(partial string) error) (string, error)
}

// Watcher is implemented by stores that publish message snapshots.
type Watcher interface {
	WatchMessages(ctx context.Context, sessionID string) (<-chan []chat.Message, error)
}

// SendResult describes what a turn produced. ErrorText is set instead of
// Reply when the responder failed.
type SendResult struct {
	SessionID   string        `json:"sessionId"`
	UserMessage *chat.Message `json:"userMessage,omitempty"`
	Reply       *chat.Message `json:"message,omitempty"`
	ErrorText   string        `json:"errorText,omitempty"`
	Canceled    bool          `json:"canceled,omitempty"`
}

// Options tunes a Coordinator.
type Options struct {
	UserID       string
	ReplayDelay  time.Duration
	HistoryLimit int
	Metrics      *telemetry.Metrics
}

// Coordinator owns the active conversation and runs turns against the
// store and responder.
type Coordinator struct {
	store     storage.Store
	responder Responder
	opts      Options
	logger    *zap.Logger

	mu        sync.Mutex
	active    string
	lastError map[string]string
	locks     map[string]*sync.Mutex
	watches   map[string]context.CancelFunc
	snapshots map[string][]chat.Message
	inflight  map[int]context.CancelFunc
	nextID    int
}

// NewCoordinator wires a coordinator. responder may be nil, in which case
// only welcome turns succeed.
func NewCoordinator(store storage.Store, responder Responder, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = ai.DefaultHistoryLimit
	}
	return &Coordinator{
		store:     store,
		responder: responder,
		opts:      opts,
		logger:    logger.Named("chat"),
		lastError: make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
		watches:   make(map[string]context.CancelFunc),
		snapshots: make(map[string][]chat.Message),
		inflight:  make(map[int]context.CancelFunc),
	}
}

// NewConversation creates a session of category and makes it active.
func (c *Coordinator) NewConversation(ctx context.Context, category chat.Category) (chat.Session, error) {
	category = chat.ParseCategory(string(category))
	session, err := c.store.CreateSession(ctx, chat.Session{
		Name:     category.DefaultName(),
		Category: category,
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("create conversation: %w", err)
	}

	c.mu.Lock()
	c.active = session.ID
	c.mu.Unlock()
	c.watch(session.ID)

	c.logger.Info("conversation created", zap.String("session_id", session.ID), zap.String("category", string(category)))
	return session, nil
}

// SelectConversation makes id the active conversation.
func (c *Coordinator) SelectConversation(ctx context.Context, id string) (chat.Session, error) {
	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}
	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
	c.watch(id)
	return session, nil
}

// Active returns the active session id, or "" when there is none.
func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ActiveMessages returns the latest watched snapshot of the active
// conversation.
func (c *Coordinator) ActiveMessages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshots[c.active]
	out := make([]chat.Message, len(snap))
	copy(out, snap)
	return out
}

// Conversations lists sessions, most recently updated first.
func (c *Coordinator) Conversations(ctx context.Context) ([]chat.Session, error) {
	return c.store.ListSessions(ctx)
}

// Conversation returns one session.
func (c *Coordinator) Conversation(ctx context.Context, id string) (chat.Session, error) {
	return c.store.GetSession(ctx, id)
}

// Messages returns the ordered messages of a session.
func (c *Coordinator) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return c.store.ListMessages(ctx, sessionID)
}

// DeleteMessage removes a single message.
func (c *Coordinator) DeleteMessage(ctx context.Context, id string) (chat.Message, error) {
	return c.store.DeleteMessage(ctx, id)
}

// RenameConversation changes the display name of a session.
func (c *Coordinator) RenameConversation(ctx context.Context, id, name string) (chat.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Session{}, ErrNameRequired
	}
	return c.store.RenameSession(ctx, id, name)
}

// DeleteConversation removes a session and its messages. When it was the
// active one, the newest remaining session becomes active, or a new
// general conversation is created when none remain.
func (c *Coordinator) DeleteConversation(ctx context.Context, id string) error {
	if err := c.store.DeleteSession(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	if cancel, ok := c.watches[id]; ok {
		cancel()
		delete(c.watches, id)
	}
	delete(c.snapshots, id)
	delete(c.lastError, id)
	delete(c.locks, id)
	wasActive := c.active == id
	if wasActive {
		c.active = ""
	}
	c.mu.Unlock()

	if !wasActive {
		return nil
	}

	remaining, err := c.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(remaining) > 0 {
		_, err = c.SelectConversation(ctx, remaining[0].ID)
		return err
	}
	_, err = c.NewConversation(ctx, chat.CategoryGeneral)
	return err
}

// LastError returns the error text of the most recent failed turn of a
// session.
func (c *Coordinator) LastError(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError[sessionID]
}

// ClearError forgets the error text of a session.
func (c *Coordinator) ClearError(sessionID string) {
	c.mu.Lock()
	delete(c.lastError, sessionID)
	c.mu.Unlock()
}

// Stop cancels every turn in flight, on every session. Callers that
// only own some of the turns cancel the contexts they passed in.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.inflight {
		cancel()
		delete(c.inflight, id)
	}
}

// Close stops in-flight turns and all watches.
func (c *Coordinator) Close() {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.watches {
		cancel()
		delete(c.watches, id)
	}
}

// SendMessage runs a turn on the active conversation.
func (c *Coordinator) SendMessage(ctx context.Context, text string) (SendResult, error) {
	active := c.Active()
	if active == "" {
		return SendResult{}, ErrNoActiveConversation
	}
	return c.SendTo(ctx, active, text)
}

// SendTo runs a turn on sessionID. Responder failures are reported in
// the result, not as an error.
func (c *Coordinator) SendTo(ctx context.Context, sessionID, text string) (SendResult, error) {
	return c.run(ctx, sessionID, text, nil)
}

// StreamTo is SendTo with the reply delivered progressively through
// emit before it is stored.
func (c *Coordinator) StreamTo(ctx context.Context, sessionID, text string, emit func(partial string) error) (SendResult, error) {
	if emit == nil {
		emit = func(string) error { return nil }
	}
	return c.run(ctx, sessionID, text, emit)
}

func (c *Coordinator) run(ctx context.Context, sessionID, text string, emit func(string) error) (SendResult, error) {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return SendResult{}, err
	}

	ctx, release := c.track(ctx)
	defer release()

	history, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return SendResult{}, fmt.Errorf("load history: %w", err)
	}

	result := SendResult{SessionID: sessionID}
	c.ClearError(sessionID)

	if strings.TrimSpace(text) != "" {
		userMsg, err := c.store.AppendMessage(ctx, chat.Message{
			SessionID: sessionID,
			Role:      chat.RoleUser,
			Content:   text,
		})
		if err != nil {
			return SendResult{}, fmt.Errorf("store user message: %w", err)
		}
		result.UserMessage = &userMsg
	}

	var reply string
	outcome := telemetry.OutcomeReplied
	if ai.IsWelcomeTrigger(text) {
		outcome = telemetry.OutcomeWelcome
		reply = ai.WelcomeMessage(session.Category)
		if emit != nil {
			if err := emit(reply); err != nil {
				return result, err
			}
		}
	} else {
		reply, err = c.respond(ctx, session, text, history, emit)
		if err == nil && remote.IsErrorText(reply) {
			result.ErrorText = reply
		}
		switch {
		case err != nil && ctx.Err() != nil:
			c.opts.Metrics.ChatSend(string(session.Category), telemetry.OutcomeCanceled)
			result.Canceled = true
			return result, nil
		case err != nil:
			result.ErrorText = c.describe(err)
			c.logger.Warn("responder failed", zap.String("session_id", sessionID), zap.Error(err))
			c.opts.Metrics.CollaboratorFailure("chat")
		}
		if result.ErrorText != "" {
			c.mu.Lock()
			c.lastError[sessionID] = result.ErrorText
			c.mu.Unlock()
			c.opts.Metrics.ChatSend(string(session.Category), telemetry.OutcomeError)
			return result, nil
		}
	}

	replyMsg, err := c.store.AppendMessage(context.WithoutCancel(ctx), chat.Message{
		SessionID: sessionID,
		Role:      chat.RoleAssistant,
		Content:   reply,
	})
	if err != nil {
		return result, fmt.Errorf("store reply: %w", err)
	}
	result.Reply = &replyMsg
	c.opts.Metrics.ChatSend(string(session.Category), outcome)
	return result, nil
}

func (c *Coordinator) respond(ctx context.Context, session chat.Session, text string, history []chat.Message, emit func(string) error) (string, error) {
	if c.responder == nil {
		return "", errors.New("no chat backend configured")
	}

	if len(history) > c.opts.HistoryLimit {
		history = history[len(history)-c.opts.HistoryLimit:]
	}
	req := chat.ReplyRequest{
		Text:         text,
		Category:     session.Category,
		SessionID:    session.ID,
		UserID:       c.opts.UserID,
		SystemPrompt: ai.SystemPrompt(session.Category),
		History:      history,
	}

	if emit == nil {
		return c.responder.Reply(ctx, req)
	}
	if streamer, ok := c.responder.(StreamResponder); ok {
		return streamer.Stream(ctx, req, emit)
	}
	reply, err := c.responder.Reply(ctx, req)
	if err != nil {
		return "", err
	}
	if remote.IsErrorText(reply) {
		return reply, nil
	}
	if err := utils.Replay(ctx, reply, c.opts.ReplayDelay, emit); err != nil {
		return "", err
	}
	return reply, nil
}

func (c *Coordinator) describe(err error) string {
	if c.responder == nil {
		return "Error: " + err.Error()
	}
	return c.responder.Describe(err)
}

func (c *Coordinator) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

// track derives a cancelable context that Stop can reach.
func (c *Coordinator) track(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.inflight[id] = cancel
	c.mu.Unlock()

	return ctx, func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		cancel()
	}
}

// watch follows sessionID and drops the watches of every other session,
// so only the active conversation keeps a snapshot.
func (c *Coordinator) watch(sessionID string) {
	watcher, ok := c.store.(Watcher)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.active != sessionID {
		c.mu.Unlock()
		return
	}
	for id, cancel := range c.watches {
		if id == sessionID {
			continue
		}
		cancel()
		delete(c.watches, id)
		delete(c.snapshots, id)
	}
	if _, running := c.watches[sessionID]; running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.watches[sessionID] = cancel
	c.mu.Unlock()

	updates, err := watcher.WatchMessages(ctx, sessionID)
	if err != nil {
		c.logger.Warn("watch conversation", zap.String("session_id", sessionID), zap.Error(err))
		c.mu.Lock()
		delete(c.watches, sessionID)
		c.mu.Unlock()
		cancel()
		return
	}

	store := func(snapshot []chat.Message) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, live := c.watches[sessionID]; live {
			c.snapshots[sessionID] = snapshot
		}
	}
	if first, ok := <-updates; ok {
		store(first)
	}
	go func() {
		for snapshot := range updates {
			store(snapshot)
		}
	}()
}

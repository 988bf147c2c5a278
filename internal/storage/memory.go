package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/model/chat"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	answers  []assessment.Answer
	results  []assessment.Result
	answerID uint
	resultID uint
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, session chat.Session) (chat.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]chat.Session, error) {
	s.mu.RLock()
	out := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) RenameSession(_ context.Context, id, name string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	session.Name = name
	s.sessions[id] = session
	return session, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) UpdateLastMessage(_ context.Context, id, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchLocked(id, content, at)
}

func (s *MemoryStore) touchLocked(id, content string, at time.Time) error {
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.LastMessage = content
	session.UpdatedAt = at
	s.sessions[id] = session
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	if msg.SessionID == "" {
		return chat.Message{}, ErrSessionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[msg.SessionID]; !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	existing := s.messages[msg.SessionID]
	var last time.Time
	if n := len(existing); n > 0 {
		last = existing[n-1].CreatedAt
	}
	msg.CreatedAt = nextCreatedAt(last, msg.CreatedAt)

	s.messages[msg.SessionID] = append(existing, msg)
	if err := s.touchLocked(msg.SessionID, msg.Content, msg.CreatedAt); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionID, messages := range s.messages {
		for i, msg := range messages {
			if msg.ID != id {
				continue
			}
			s.messages[sessionID] = append(messages[:i:i], messages[i+1:]...)
			return msg, nil
		}
	}
	return chat.Message{}, ErrMessageNotFound
}

func (s *MemoryStore) ReplaceAnswers(_ context.Context, kind assessment.Kind, date string, answers []assessment.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteAnswersLocked(kind, date)
	for _, a := range answers {
		s.appendAnswerLocked(a)
	}
	return nil
}

func (s *MemoryStore) AppendAnswer(_ context.Context, answer assessment.Answer) (assessment.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAnswerLocked(answer), nil
}

func (s *MemoryStore) appendAnswerLocked(a assessment.Answer) assessment.Answer {
	s.answerID++
	a.ID = s.answerID
	s.answers = append(s.answers, a)
	return a
}

func (s *MemoryStore) DeleteAnswersByDate(_ context.Context, kind assessment.Kind, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteAnswersLocked(kind, date)
	return nil
}

func (s *MemoryStore) deleteAnswersLocked(kind assessment.Kind, date string) {
	kept := s.answers[:0]
	for _, a := range s.answers {
		if a.Kind == kind && a.Date == date {
			continue
		}
		kept = append(kept, a)
	}
	s.answers = kept
}

func (s *MemoryStore) AnswersForDate(_ context.Context, kind assessment.Kind, date string) ([]assessment.Answer, error) {
	s.mu.RLock()
	var out []assessment.Answer
	for _, a := range s.answers {
		if a.Kind == kind && a.Date == date {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *MemoryStore) TotalScoreForDate(ctx context.Context, kind assessment.Kind, date string) (int, error) {
	answers, err := s.AnswersForDate(ctx, kind, date)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, a := range answers {
		total += a.Score
	}
	return total, nil
}

func (s *MemoryStore) AppendResult(_ context.Context, result assessment.Result) (assessment.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultID++
	result.ID = s.resultID
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	s.results = append(s.results, result)
	return result, nil
}

func (s *MemoryStore) ListResults(_ context.Context, kind assessment.Kind) ([]assessment.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]assessment.Result, 0, len(s.results))
	for i := len(s.results) - 1; i >= 0; i-- {
		if kind == "" || s.results[i].Kind == kind {
			out = append(out, s.results[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

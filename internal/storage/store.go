// Package storage persists chat sessions, messages and assessment data.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrSessionRequired = errors.New("session id is required")
)

// Store is the local persistence contract. Implementations are safe for
// concurrent use.
type Store interface {
	CreateSession(ctx context.Context, session chat.Session) (chat.Session, error)
	GetSession(ctx context.Context, id string) (chat.Session, error)
	// ListSessions orders by UpdatedAt, newest first.
	ListSessions(ctx context.Context) ([]chat.Session, error)
	RenameSession(ctx context.Context, id, name string) (chat.Session, error)
	// DeleteSession removes the session and all of its messages.
	DeleteSession(ctx context.Context, id string) error
	UpdateLastMessage(ctx context.Context, id, content string, at time.Time) error

	// AppendMessage assigns an id when missing, keeps CreatedAt strictly
	// increasing within the session and refreshes the session preview.
	AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	// ListMessages orders by CreatedAt ascending.
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	DeleteMessage(ctx context.Context, id string) (chat.Message, error)

	// ReplaceAnswers drops every answer of kind on date and inserts answers.
	ReplaceAnswers(ctx context.Context, kind assessment.Kind, date string, answers []assessment.Answer) error
	AppendAnswer(ctx context.Context, answer assessment.Answer) (assessment.Answer, error)
	DeleteAnswersByDate(ctx context.Context, kind assessment.Kind, date string) error
	// AnswersForDate orders by question id.
	AnswersForDate(ctx context.Context, kind assessment.Kind, date string) ([]assessment.Answer, error)
	TotalScoreForDate(ctx context.Context, kind assessment.Kind, date string) (int, error)

	AppendResult(ctx context.Context, result assessment.Result) (assessment.Result, error)
	// ListResults returns newest first. An empty kind lists every kind.
	ListResults(ctx context.Context, kind assessment.Kind) ([]assessment.Result, error)

	Close() error
}

// nextCreatedAt returns candidate, or last+1µs when candidate would not
// sort after last.
func nextCreatedAt(last, candidate time.Time) time.Time {
	if candidate.IsZero() {
		candidate = time.Now().UTC()
	}
	if !last.IsZero() && !candidate.After(last) {
		return last.Add(time.Microsecond).UTC()
	}
	return candidate.UTC()
}

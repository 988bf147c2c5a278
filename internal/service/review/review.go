// Package review builds a personalised review from today's questionnaire
// answers.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	model "github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/service/ai"
	"github.com/helpyourself/companion/backend/internal/storage"
)

var ErrNotConfigured = errors.New("review generator not configured")

const instruction = "Based on these responses, provide a personalised yet concise review (≤ 180 words) that explains possible interpretations, flags any concerning patterns, and suggests gentle, actionable recommendations. Conclude with an encouraging sentence."

// Review is a generated review for one day.
type Review struct {
	Date string `json:"date"`
	Text string `json:"review"`
}

// Service gathers answers and asks the model for a review.
type Service struct {
	store     storage.Store
	generator ai.Generator
	now       func() time.Time
	logger    *zap.Logger
}

// New wires a Service. generator may be nil; Generate then fails with
// ErrNotConfigured.
func New(store storage.Store, generator ai.Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, generator: generator, now: time.Now, logger: logger.Named("review")}
}

// WithClock replaces the clock used to pick today's date.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate reviews today's answers.
func (s *Service) Generate(ctx context.Context) (Review, error) {
	if s.generator == nil {
		return Review{}, ErrNotConfigured
	}
	date := s.now().Format(model.DateLayout)

	prompt, err := s.Prompt(ctx, date)
	if err != nil {
		return Review{}, err
	}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("generate review", zap.String("date", date), zap.Error(err))
		return Review{}, fmt.Errorf("generate review: %w", err)
	}
	return Review{Date: date, Text: strings.TrimSpace(text)}, nil
}

// Prompt renders the review prompt for date.
func (s *Service) Prompt(ctx context.Context, date string) (string, error) {
	sections := []struct {
		title string
		kind  model.Kind
		empty string
		score bool
	}{
		{"Depression Responses", model.KindDepression, "No depression questions answered today.", false},
		{"Anxiety Responses", model.KindAnxiety, "No anxiety questions answered today.", true},
		{"Stress Responses", model.KindStress, "No stress questions answered today.", true},
	}

	var b strings.Builder
	b.WriteString("Today's mental-health questionnaire results:\n\n")
	for _, sec := range sections {
		answers, err := s.store.AnswersForDate(ctx, sec.kind, date)
		if err != nil {
			return "", fmt.Errorf("load %s answers: %w", sec.kind, err)
		}
		b.WriteString(sec.title + ":\n")
		if len(answers) == 0 {
			b.WriteString(sec.empty + "\n\n")
			continue
		}
		for _, a := range answers {
			if sec.score {
				fmt.Fprintf(&b, "• %s: %s (score %d)\n", a.Question, a.Option, a.Score)
			} else {
				fmt.Fprintf(&b, "• %s: %s\n", a.Question, a.Option)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(instruction)
	return b.String(), nil
}

// Describe turns a Generate error into the text shown to the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		msg = inner.Error()
	}
	return "Could not generate review: " + msg
}

// Package assessment holds the questionnaire state machines and their
// scoring rules. Nothing here touches storage.
package assessment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	model "github.com/helpyourself/companion/backend/internal/model/assessment"
)

var (
	ErrRunComplete   = errors.New("questionnaire already complete")
	ErrInvalidScore  = errors.New("score out of range")
	ErrUnknownOption = errors.New("unknown answer option")
)

// Option is a selectable answer and its raw score.
type Option struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

// Question is one prompt of a questionnaire. IDs are 1-based.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Recorded describes what an answer stored for a question.
type Recorded struct {
	Question Question
	Option   string
	Score    int
}

// Outcome is the interpretation of a finished run.
type Outcome struct {
	Score          int    `json:"score"`
	Interpretation string `json:"interpretation"`
	Recommendation string `json:"recommendation"`
	Urgent         bool   `json:"urgent"`
	Encoded        string `json:"answersEncoded"`
}

// Engine is the shape shared by the fixed and branching questionnaires.
type Engine interface {
	Kind() model.Kind
	Current() (Question, bool)
	Choose(option string) (Recorded, error)
	Complete() bool
	Outcome() (Outcome, bool)
	Reset()
}

// New returns a fresh engine for kind.
func New(kind model.Kind) (Engine, error) {
	switch kind {
	case model.KindAnxiety:
		return NewFixed(GAD7), nil
	case model.KindStress:
		return NewFixed(PSS10), nil
	case model.KindDepression:
		return NewDepression(), nil
	default:
		return nil, fmt.Errorf("no questionnaire for kind %q", kind)
	}
}

// FindOption resolves an option by label (case-insensitive) or by its
// zero-based index written as a number.
func FindOption(options []Option, raw string) (Option, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, opt := range options {
		if strings.EqualFold(opt.Label, trimmed) {
			return opt, true
		}
	}
	if idx, err := strconv.Atoi(trimmed); err == nil && idx >= 0 && idx < len(options) {
		return options[idx], true
	}
	return Option{}, false
}

func encodePairs(ids []int, values []string) string {
	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		parts = append(parts, fmt.Sprintf("%d=%s", id, values[i]))
	}
	return strings.Join(parts, ";")
}

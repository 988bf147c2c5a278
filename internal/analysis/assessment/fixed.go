package assessment

import (
	"fmt"
	"strconv"

	model "github.com/helpyourself/companion/backend/internal/model/assessment"
)

// Definition describes a fixed-sequence questionnaire.
type Definition struct {
	Kind           model.Kind
	Questions      []Question
	MaxScore       int
	Reversed       map[int]bool
	Bands          func(total int) string
	Recommendation string
}

// Fixed walks a Definition front to back, one answer per question.
type Fixed struct {
	def      *Definition
	index    int
	scores   []int
	complete bool
	total    int
}

// NewFixed starts a run of def at the first question.
func NewFixed(def *Definition) *Fixed {
	return &Fixed{def: def, scores: make([]int, len(def.Questions))}
}

func (f *Fixed) Kind() model.Kind { return f.def.Kind }

// Index is the zero-based position of the current question.
func (f *Fixed) Index() int { return f.index }

func (f *Fixed) Current() (Question, bool) {
	if f.complete {
		return Question{}, false
	}
	return f.def.Questions[f.index], true
}

// Answer records score for the current question and advances. The value
// stored (and returned) has reversal applied. Answering the last question
// completes the run.
func (f *Fixed) Answer(score int) (int, error) {
	if f.complete {
		return 0, ErrRunComplete
	}
	if score < 0 || score > f.def.MaxScore {
		return 0, fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidScore, score, f.def.MaxScore)
	}

	value := score
	if f.def.Reversed[f.index+1] {
		value = f.def.MaxScore - score
	}
	f.scores[f.index] = value

	if f.index == len(f.def.Questions)-1 {
		f.complete = true
		f.total = f.Score()
	} else {
		f.index++
	}
	return value, nil
}

func (f *Fixed) Choose(option string) (Recorded, error) {
	q, ok := f.Current()
	if !ok {
		return Recorded{}, ErrRunComplete
	}
	opt, ok := FindOption(q.Options, option)
	if !ok {
		return Recorded{}, fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	value, err := f.Answer(opt.Score)
	if err != nil {
		return Recorded{}, err
	}
	return Recorded{Question: q, Option: opt.Label, Score: value}, nil
}

// Score sums the stored per-question values.
func (f *Fixed) Score() int {
	sum := 0
	for _, s := range f.scores {
		sum += s
	}
	return sum
}

// Interpret maps a total onto the definition's severity bands.
func (f *Fixed) Interpret(total int) string {
	return f.def.Bands(total)
}

func (f *Fixed) Complete() bool { return f.complete }

func (f *Fixed) Outcome() (Outcome, bool) {
	if !f.complete {
		return Outcome{}, false
	}
	return Outcome{
		Score:          f.total,
		Interpretation: f.Interpret(f.total),
		Recommendation: f.def.Recommendation,
		Encoded:        f.Encode(),
	}, true
}

// Encode renders "1=3;2=0;..." over the stored values.
func (f *Fixed) Encode() string {
	ids := make([]int, len(f.scores))
	values := make([]string, len(f.scores))
	for i, s := range f.scores {
		ids[i] = i + 1
		values[i] = strconv.Itoa(s)
	}
	return encodePairs(ids, values)
}

func (f *Fixed) Reset() {
	for i := range f.scores {
		f.scores[i] = 0
	}
	f.index = 0
	f.complete = false
	f.total = 0
}

package assessment

import (
	"fmt"

	model "github.com/helpyourself/companion/backend/internal/model/assessment"
)

// Reply is an answer to a depression screening question.
type Reply string

const (
	Yes       Reply = "Yes"
	No        Reply = "No"
	DontKnow  Reply = "Don't know"
	Refuse    Reply = "Refuse"
	firstStep       = 1
	lastStep        = 23
)

var depressionOptions = []Option{
	{Label: string(Yes), Score: 1},
	{Label: string(No), Score: 0},
	{Label: string(DontKnow), Score: 0},
	{Label: string(Refuse), Score: 0},
}

// depressionOrder lists question ids in presentation order. Ids 2-4 are
// not part of this screener.
var depressionOrder = []int{1, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}

var depressionText = map[int]string{
	1:  "Have you ever been told by a doctor or other health worker that you have depression?",
	5:  "Have you been taking any medications or other treatment, like counseling or psychotherapy, either alone or in group, for depression in the last 2 weeks?",
	6:  "During the last 12 months, have you had a period lasting several days when you felt sad, empty or depressed?",
	7:  "During the last 12 months, have you had a period lasting several days when you lost interest in most things you usually enjoy such as personal relationships, work or hobbies/recreation?",
	8:  "During the last 12 months, have you had a period lasting several days when you have been feeling your energy decreased or that you are tired all the time?",
	9:  "Was this period of sadness, loss of interest or low energy for more than 2 weeks?",
	10: "Was this period of sadness, loss of interest or low energy most of the day, nearly every day?",
	11: "Did you lose your appetite?",
	12: "Did you notice any slowing down in your thinking?",
	13: "Did you notice any problems falling asleep?",
	14: "Did you notice any problems waking up too early?",
	15: "Did you have any difficulties concentrating; for example, listening to others, working, watching TV, listening to the radio?",
	16: "Did you notice any slowing down in your moving around?",
	17: "Did you feel anxious and worried most days?",
	18: "Were you so restless or jittery nearly every day that you paced up and down and couldn't sit still?",
	19: "Did you feel negative about yourself or like you had lost confidence?",
	20: "Did you frequently feel hopeless - that there was no way to improve things?",
	21: "Did your interest in sex decrease?",
	22: "Did you think of death, or wish you were dead?",
	23: "During this period, did you ever try to end your life?",
}

// DepressionQuestion returns the question with the given id.
func DepressionQuestion(id int) (Question, bool) {
	text, ok := depressionText[id]
	if !ok {
		return Question{}, false
	}
	return Question{ID: id, Text: text, Options: depressionOptions}, true
}

// NextQuestion picks the id that follows current given the answers so
// far. ok is false when the run terminates.
func NextQuestion(current int, answers map[int]Reply) (next int, ok bool) {
	switch {
	case current == 1:
		return 5, true
	case current >= 5 && current <= 7:
		return current + 1, true
	case current == 8:
		if answers[6] == Yes || answers[7] == Yes || answers[8] == Yes {
			return 9, true
		}
		return 0, false
	case current == 9 || current == 10:
		if answers[current] == Yes {
			return current + 1, true
		}
		return 0, false
	case current >= 11 && current < lastStep:
		return current + 1, true
	default:
		return 0, false
	}
}

// Depression is the branching WHO-style screener.
type Depression struct {
	current  int
	answers  map[int]Reply
	order    []int
	complete bool
	outcome  Outcome
}

// NewDepression starts at the first screening question.
func NewDepression() *Depression {
	return &Depression{current: firstStep, answers: make(map[int]Reply)}
}

func (d *Depression) Kind() model.Kind { return model.KindDepression }

func (d *Depression) Current() (Question, bool) {
	if d.complete {
		return Question{}, false
	}
	return DepressionQuestion(d.current)
}

// Answer records reply for the current question and moves along the
// branch table.
func (d *Depression) Answer(reply Reply) error {
	if d.complete {
		return ErrRunComplete
	}
	if _, ok := FindOption(depressionOptions, string(reply)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, reply)
	}

	d.answers[d.current] = reply
	d.order = append(d.order, d.current)

	next, ok := NextQuestion(d.current, d.answers)
	if !ok {
		d.complete = true
		d.outcome = EvaluateDepression(d.answers)
		d.outcome.Encoded = d.Encode()
		return nil
	}
	d.current = next
	return nil
}

func (d *Depression) Choose(option string) (Recorded, error) {
	q, ok := d.Current()
	if !ok {
		return Recorded{}, ErrRunComplete
	}
	opt, ok := FindOption(q.Options, option)
	if !ok {
		return Recorded{}, fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	if err := d.Answer(Reply(opt.Label)); err != nil {
		return Recorded{}, err
	}
	return Recorded{Question: q, Option: opt.Label, Score: opt.Score}, nil
}

func (d *Depression) Complete() bool { return d.complete }

func (d *Depression) Outcome() (Outcome, bool) {
	return d.outcome, d.complete
}

// Answers returns the answered questions in the order they were asked.
func (d *Depression) Answers() []Recorded {
	out := make([]Recorded, 0, len(d.order))
	for _, id := range d.order {
		q, _ := DepressionQuestion(id)
		reply := d.answers[id]
		out = append(out, Recorded{Question: q, Option: string(reply), Score: replyScore(reply)})
	}
	return out
}

// Encode renders "1=No;5=Yes;..." in asked order.
func (d *Depression) Encode() string {
	values := make([]string, len(d.order))
	for i, id := range d.order {
		values[i] = string(d.answers[id])
	}
	return encodePairs(d.order, values)
}

func (d *Depression) Reset() {
	d.current = firstStep
	d.answers = make(map[int]Reply)
	d.order = nil
	d.complete = false
	d.outcome = Outcome{}
}

type depressionTier int

const (
	tierNone depressionTier = iota
	tierSubclinical
	tierMild
	tierModerate
	tierSevere
)

const (
	urgentRecommendation = "IMPORTANT: Your responses indicate thoughts of death or self-harm. Please seek immediate help from a mental health professional or emergency services. You can also contact our emergency support services for immediate assistance."
	// NoSymptomsInterpretation is produced when all three screening
	// questions are answered "No".
	NoSymptomsInterpretation = "Based on your responses, you are not currently experiencing significant depressive symptoms."
)

// EvaluateDepression interprets a finished set of answers. The score is
// the number of "Yes" answers.
func EvaluateDepression(answers map[int]Reply) Outcome {
	tier := tierNone
	var interpretation string

	switch {
	case answers[1] == Yes:
		if answers[5] == Yes {
			interpretation = "You have previously been diagnosed with depression and are currently under treatment."
		} else {
			interpretation = "You have previously been diagnosed with depression but are not currently under treatment."
		}
	case answers[6] == No && answers[7] == No && answers[8] == No:
		interpretation = NoSymptomsInterpretation
	case answers[9] == No || answers[10] == No:
		interpretation = "Your responses indicate some mood symptoms, but they may not meet the duration or frequency criteria for clinical depression."
	default:
		symptoms := 0
		for id := 11; id <= lastStep; id++ {
			if answers[id] == Yes {
				symptoms++
			}
		}
		switch {
		case symptoms >= 8:
			tier = tierSevere
			interpretation = "Your responses suggest significant depressive symptoms that may indicate severe depression."
		case symptoms >= 5:
			tier = tierModerate
			interpretation = "Your responses suggest moderate depressive symptoms."
		case symptoms >= 3:
			tier = tierMild
			interpretation = "Your responses suggest mild depressive symptoms."
		default:
			tier = tierSubclinical
			interpretation = "Your responses indicate some depressive symptoms, but they may not meet clinical criteria."
		}
	}

	urgent := answers[22] == Yes || answers[23] == Yes
	var recommendation string
	switch {
	case urgent:
		recommendation = urgentRecommendation
	case answers[1] == Yes && answers[5] == No:
		recommendation = "Since you have a history of depression but are not currently under treatment, it is recommended to consult with a mental health professional for an evaluation."
	case tier == tierSevere:
		recommendation = "It is strongly recommended to consult with a mental health professional for a thorough evaluation and appropriate treatment."
	case tier == tierModerate:
		recommendation = "Consider speaking with a mental health professional to discuss your symptoms and potential treatment options."
	case tier == tierMild:
		recommendation = "Consider implementing self-care strategies and monitoring your symptoms. If they persist or worsen, consult with a mental health professional."
	default:
		recommendation = "Continue monitoring your mental health and practice self-care. If you notice any changes or worsening symptoms, don't hesitate to seek professional support."
	}

	score := 0
	for _, reply := range answers {
		score += replyScore(reply)
	}

	return Outcome{
		Score:          score,
		Interpretation: interpretation,
		Recommendation: recommendation,
		Urgent:         urgent,
	}
}

func replyScore(r Reply) int {
	if r == Yes {
		return 1
	}
	return 0
}

func (r Reply) String() string { return string(r) }

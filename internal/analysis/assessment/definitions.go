package assessment

import model "github.com/helpyourself/companion/backend/internal/model/assessment"

var gad7Options = []Option{
	{Label: "Not at all", Score: 0},
	{Label: "Several days", Score: 1},
	{Label: "More than half the days", Score: 2},
	{Label: "Nearly every day", Score: 3},
}

var pss10Options = []Option{
	{Label: "Never", Score: 0},
	{Label: "Almost never", Score: 1},
	{Label: "Sometimes", Score: 2},
	{Label: "Fairly often", Score: 3},
	{Label: "Very often", Score: 4},
}

// GAD7 is the seven item anxiety screener.
var GAD7 = &Definition{
	Kind: model.KindAnxiety,
	Questions: withOptions(gad7Options,
		"Feeling nervous, anxious or on edge?",
		"Not being able to stop or control worrying?",
		"Worrying too much about different things?",
		"Trouble relaxing?",
		"Being so restless that it is hard to sit still?",
		"Becoming easily annoyed or irritable?",
		"Feeling afraid as if something awful might happen?",
	),
	MaxScore:       3,
	Bands:          anxietyBand,
	Recommendation: "Consider consulting a mental health professional if needed.",
}

// PSS10 is the ten item perceived stress scale. Items 4, 5, 7 and 8 are
// positively worded and scored in reverse.
var PSS10 = &Definition{
	Kind: model.KindStress,
	Questions: withOptions(pss10Options,
		"In the last month, how often have you been upset because of something that happened unexpectedly?",
		"In the last month, how often have you felt that you were unable to control the important things in your life?",
		"In the last month, how often have you felt nervous and stressed?",
		"In the last month, how often have you felt confident about your ability to handle your personal problems?",
		"In the last month, how often have you felt that things were going your way?",
		"In the last month, how often have you found that you could not cope with all the things that you had to do?",
		"In the last month, how often have you been able to control irritations in your life?",
		"In the last month, how often have you felt that you were on top of things?",
		"In the last month, how often have you been angered because of things that happened that were outside of your control?",
		"In the last month, how often have you felt difficulties were piling up so high that you could not overcome them?",
	),
	MaxScore:       4,
	Reversed:       map[int]bool{4: true, 5: true, 7: true, 8: true},
	Bands:          stressBand,
	Recommendation: "Consider stress management strategies and professional help if needed.",
}

func anxietyBand(total int) string {
	switch {
	case total < 5:
		return "No anxiety"
	case total < 10:
		return "Mild anxiety"
	case total < 15:
		return "Moderate anxiety"
	default:
		return "Severe anxiety"
	}
}

func stressBand(total int) string {
	switch {
	case total <= 13:
		return "Low stress"
	case total <= 26:
		return "Moderate stress"
	default:
		return "High perceived stress"
	}
}

func withOptions(options []Option, texts ...string) []Question {
	questions := make([]Question, len(texts))
	for i, text := range texts {
		questions[i] = Question{ID: i + 1, Text: text, Options: options}
	}
	return questions
}

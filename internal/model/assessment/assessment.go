package assessment

import (
	"fmt"
	"strings"
	"time"
)

// Kind names one of the supported questionnaires.
type Kind string

const (
	KindDepression Kind = "depression"
	KindAnxiety    Kind = "anxiety"
	KindStress     Kind = "stress"
)

// DateLayout is the calendar-date format answers are grouped by.
const DateLayout = "2006-01-02"

// ParseKind validates a questionnaire name.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindDepression, KindAnxiety, KindStress:
		return k, nil
	default:
		return "", fmt.Errorf("unknown assessment kind %q", raw)
	}
}

// CloudType is the identifier the cloud store files submissions under.
func (k Kind) CloudType() string {
	switch k {
	case KindDepression:
		return "who_steps"
	case KindAnxiety:
		return "gad7"
	case KindStress:
		return "pss10"
	default:
		return string(k)
	}
}

// Answer is one answered question of a single run.
type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Kind       Kind      `json:"kind" gorm:"size:16;index:idx_answer_kind_date"`
	QuestionID int       `json:"questionId"`
	Question   string    `json:"question"`
	Option     string    `json:"option"`
	Score      int       `json:"score"`
	Date       string    `json:"date" gorm:"size:10;index:idx_answer_kind_date"`
	Timestamp  time.Time `json:"timestamp"`
}

// TableName pins the gorm table name.
func (Answer) TableName() string {
	return "assessment_answers"
}

// Result summarises a completed run. Results are append-only.
type Result struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Kind           Kind      `json:"kind" gorm:"size:16;index"`
	AnswersEncoded string    `json:"answersEncoded"`
	Interpretation string    `json:"interpretation"`
	Recommendation string    `json:"recommendation"`
	Score          int       `json:"score"`
	Urgent         bool      `json:"urgent"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
}

// TableName pins the gorm table name.
func (Result) TableName() string {
	return "assessment_results"
}

package metric

// Metric is one cloud-synced snapshot of the three 0–10 scores.
type Metric struct {
	UserID     string  `json:"userId"`
	Timestamp  int64   `json:"timestamp"`
	Depression float32 `json:"depression"`
	Anxiety    float32 `json:"anxiety"`
	Stress     float32 `json:"stress"`
	Notes      string  `json:"notes,omitempty"`
}

// AnswerDetail is the per-question payload of a submission.
type AnswerDetail struct {
	Option string `json:"option"`
	Score  int    `json:"score"`
}

// Submission is a completed questionnaire as stored in the cloud.
type Submission struct {
	Timestamp int64                   `json:"timestamp"`
	Type      string                  `json:"type"`
	Answers   map[string]AnswerDetail `json:"answers"`
	Score     int                     `json:"score"`
}

package chat

// ReplyRequest carries one turn to a responder. History excludes the
// turn's own text.
type ReplyRequest struct {
	Text         string
	Category     Category
	SessionID    string
	UserID       string
	SystemPrompt string
	History      []Message
}

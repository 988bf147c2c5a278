package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message persists individual turns; it is never mutated after insert.
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	SessionID string    `json:"sessionId" gorm:"size:64;index"`
	Role      Role      `json:"role" gorm:"size:16"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName pins the gorm table name.
func (Message) TableName() string {
	return "messages"
}

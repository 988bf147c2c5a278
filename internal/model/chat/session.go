package chat

import "time"

// Session is one conversation thread with its category and preview.
type Session struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Name        string    `json:"name"`
	Category    Category  `json:"category" gorm:"size:32;index"`
	LastMessage string    `json:"lastMessage"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"index"`
}

// TableName pins the gorm table name.
func (Session) TableName() string {
	return "chat_sessions"
}

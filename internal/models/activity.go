package models

import "gorm.io/gorm"

// ActivityLevel classifies an activity log entry.
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "info"
	ActivityWarning ActivityLevel = "warning"
	ActivityError   ActivityLevel = "error"
)

// Activity is a user-visible log line describing what a bot did.
type Activity struct {
	gorm.Model
	UserID    string        `gorm:"index;not null" json:"user_id"`
	Level     ActivityLevel `json:"level"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Timestamp int64         `gorm:"index" json:"timestamp"`
}

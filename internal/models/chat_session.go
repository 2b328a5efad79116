package models

import "time"

// ChatSession persists one conversation's state as a JSON document keyed by
// the conversation identity ("platform:channel:user").
type ChatSession struct {
	Key       string    `gorm:"column:conversation_key;primaryKey;size:191"`
	Step      string    `gorm:"size:48;not null;default:IDLE;index"`
	Data      string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;not null;index"`
}

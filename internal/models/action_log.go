package models

import "time"

// ActionLog records every device or ticket operation that changed state on
// the backend, whether it succeeded or not.
type ActionLog struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ConversationKey string `gorm:"size:191;index"`
	UserName        string `gorm:"size:64"`
	Action          string `gorm:"size:32;not null;index"`
	OLT             string `gorm:"size:64;index:idx_olt_interface"`
	Interface       string `gorm:"size:64;index:idx_olt_interface"`
	Target          string `gorm:"size:128"`
	Outcome         string `gorm:"size:8;not null"` // "ok" or "error"
	Detail          string `gorm:"type:text"`
	LatencyMs       int
	CreatedAt       time.Time `gorm:"index"`
}

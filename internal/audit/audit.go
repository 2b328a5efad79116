// Package audit records state-changing operations performed through the
// bot so operators can trace who rebooted, removed or configured a device.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/fiberline/opsbot/internal/models"
	"gorm.io/gorm"
)

// Outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry describes one operation.
type Entry struct {
	ConversationKey string
	UserName        string
	Action          string
	OLT             string
	Interface       string
	Target          string
	Err             error
	Detail          string
	Latency         time.Duration
}

// Recorder stores audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Log is a Recorder backed by the action_logs table.
type Log struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLog creates a Log. now defaults to time.Now.
func NewLog(db *gorm.DB, now func() time.Time) (*Log, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: db is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Log{db: db, now: now}, nil
}

// Record inserts e.
func (l *Log) Record(ctx context.Context, e Entry) error {
	row := models.ActionLog{
		ConversationKey: e.ConversationKey,
		UserName:        e.UserName,
		Action:          e.Action,
		OLT:             e.OLT,
		Interface:       e.Interface,
		Target:          e.Target,
		Outcome:         OutcomeOK,
		Detail:          e.Detail,
		LatencyMs:       int(e.Latency / time.Millisecond),
		CreatedAt:       l.now(),
	}
	if e.Err != nil {
		row.Outcome = OutcomeError
		row.Detail = e.Err.Error()
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("audit: record %s: %w", e.Action, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-empty action
// filters by action name.
func (l *Log) Recent(ctx context.Context, action string, limit int) ([]models.ActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := l.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var rows []models.ActionLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return rows, nil
}

// Prune deletes entries created before cutoff.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ActionLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}

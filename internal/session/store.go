package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fiberline/opsbot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by Store.Get when no session is stored for a key.
var ErrNotFound = errors.New("session: not found")

// Summary describes a stored session without decoding its payload.
type Summary struct {
	Key       string    `json:"key"`
	Step      Step      `json:"step"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists sessions by conversation key. Writes are durable when the
// call returns.
type Store interface {
	Get(ctx context.Context, key string) (*Session, error)
	Set(ctx context.Context, key string, s *Session) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]Summary, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// GormStore is a Store backed by the chat_sessions table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// GormStoreOpts holds parameters for creating a GormStore.
type GormStoreOpts struct {
	DB  *gorm.DB
	Now func() time.Time // defaults to time.Now
}

// NewGormStore creates a GormStore. The schema must already be migrated.
func NewGormStore(opts GormStoreOpts) (*GormStore, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("session: store: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &GormStore{db: opts.DB, now: now}, nil
}

// Get loads the session stored under key.
func (g *GormStore) Get(ctx context.Context, key string) (*Session, error) {
	var row models.ChatSession
	err := g.db.WithContext(ctx).Where("conversation_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", key, err)
	}
	var s Session
	if err := json.Unmarshal([]byte(row.Data), &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", key, err)
	}
	return &s, nil
}

// Set upserts the session under key.
func (g *GormStore) Set(ctx context.Context, key string, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	row := models.ChatSession{
		Key:       key,
		Step:      string(s.Step),
		Data:      string(data),
		UpdatedAt: g.now(),
	}
	result := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"step", "data", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("session: set %s: %w", key, result.Error)
	}
	return nil
}

// Delete removes the session under key. Deleting a missing key is not an
// error.
func (g *GormStore) Delete(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Where("conversation_key = ?", key).Delete(&models.ChatSession{}).Error; err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every stored key in lexical order.
func (g *GormStore) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := g.db.WithContext(ctx).Model(&models.ChatSession{}).
		Order("conversation_key").Pluck("conversation_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("session: list keys: %w", err)
	}
	return keys, nil
}

// List returns a summary of every stored session, most recent first.
func (g *GormStore) List(ctx context.Context) ([]Summary, error) {
	var rows []models.ChatSession
	if err := g.db.WithContext(ctx).Select("conversation_key", "step", "updated_at").
		Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{Key: r.Key, Step: Step(r.Step), UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

// Cleanup deletes sessions last written before olderThan and returns how
// many were removed.
func (g *GormStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result := g.db.WithContext(ctx).Where("updated_at < ?", olderThan).Delete(&models.ChatSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("session: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openStoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.ChatSession{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

// fakeClock is a settable time source.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*GormStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	store, err := NewGormStore(GormStoreOpts{DB: openStoreTestDB(t), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}
	return store, clock
}

func TestNewGormStore_RequiresDB(t *testing.T) {
	if _, err := NewGormStore(GormStoreOpts{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestGormStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "telegram:1:1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGormStore_SetGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	s := New(t0)
	s.Transition(CheckActions, t0)
	s.CheckState().Customer = &backend.Customer{Name: "Ahmad", OLT: "OLT-A", Interface: "0/1/1"}

	if err := store.Set(ctx, "telegram:1:1", s); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "telegram:1:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Step != CheckActions {
		t.Errorf("Step = %s, want %s", got.Step, CheckActions)
	}
	if got.Check == nil || got.Check.Customer == nil || got.Check.Customer.Interface != "0/1/1" {
		t.Errorf("Check = %+v, want customer with interface", got.Check)
	}
}

func TestGormStore_SetOverwrites(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	s := New(t0)
	s.Transition(TicketWaitingQuery, t0)
	if err := store.Set(ctx, "k:c:u", s); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clock.now = t0.Add(time.Hour)
	s.Reset()
	if err := store.Set(ctx, "k:c:u", s); err != nil {
		t.Fatalf("Set again: %v", err)
	}

	got, err := store.Get(ctx, "k:c:u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Step != Idle {
		t.Errorf("Step = %s, want IDLE", got.Step)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1", len(list))
	}
	if !list[0].UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want %v", list[0].UpdatedAt, t0.Add(time.Hour))
	}
}

func TestGormStore_DeleteAndListKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"b:1:1", "a:1:1", "c:1:1"} {
		if err := store.Set(ctx, k, New(t0)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := store.Delete(ctx, "b:1:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "missing:1:1"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}

	keys, err := store.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a:1:1" || keys[1] != "c:1:1" {
		t.Errorf("ListKeys() = %v, want [a:1:1 c:1:1]", keys)
	}
}

func TestGormStore_Cleanup(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "old:1:1", New(t0)); err != nil {
		t.Fatalf("Set old: %v", err)
	}
	clock.now = t0.Add(30 * time.Hour)
	if err := store.Set(ctx, "new:1:1", New(clock.now)); err != nil {
		t.Fatalf("Set new: %v", err)
	}

	n, err := store.Cleanup(ctx, clock.now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("Cleanup() removed %d, want 1", n)
	}
	if _, err := store.Get(ctx, "old:1:1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old session still present: %v", err)
	}
	if _, err := store.Get(ctx, "new:1:1"); err != nil {
		t.Errorf("new session removed: %v", err)
	}
}

func TestGormStore_GetCorruptData(t *testing.T) {
	store, _ := newTestStore(t)
	row := models.ChatSession{Key: "bad:1:1", Step: "IDLE", Data: "{not json", UpdatedAt: t0}
	if err := store.db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.Get(context.Background(), "bad:1:1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want decode error", err)
	}
}

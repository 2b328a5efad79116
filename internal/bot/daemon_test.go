package bot

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fiberline/opsbot/internal/session"
)

// syncBuffer is a bytes.Buffer safe for the daemon goroutine to write while
// the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestDaemon(t *testing.T, mock *MockAdapter, store session.Store, out *syncBuffer) *Daemon {
	t.Helper()
	d, err := NewDaemon(DaemonOpts{
		Config:  testConfig(t),
		Adapter: mock,
		API:     newFakeAPI(),
		Store:   store,
		Audit:   &fakeAudit{},
		Out:     out,
		Now:     func() time.Time { return t0 },
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	return d
}

// --- NewDaemon validation tests ---

func TestNewDaemon_Validation(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name string
		opts DaemonOpts
		want string
	}{
		{"nil config", DaemonOpts{Adapter: NewMockAdapter(), API: newFakeAPI(), Store: newMemStore()}, "config is required"},
		{"nil adapter", DaemonOpts{Config: cfg, API: newFakeAPI(), Store: newMemStore()}, "adapter is required"},
		{"nil api", DaemonOpts{Config: cfg, Adapter: NewMockAdapter(), Store: newMemStore()}, "api is required"},
		{"nil store", DaemonOpts{Config: cfg, Adapter: NewMockAdapter(), API: newFakeAPI()}, "store is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDaemon(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewDaemon() error = %v, want %q", err, tt.want)
			}
		})
	}
}

// --- Run lifecycle tests ---

func TestRun_ConnectsAndShutdown(t *testing.T) {
	mock := NewMockAdapter()
	var out syncBuffer
	d := newTestDaemon(t, mock, newMemStore(), &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "opsbot online") }, 2*time.Second)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}

	output := out.String()
	for _, want := range []string{"opsbot connecting to console", "opsbot shutting down", "opsbot stopped"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output: %s", want, output)
		}
	}
}

func TestRun_InboundClosed(t *testing.T) {
	mock := NewMockAdapter()
	var out syncBuffer
	d := newTestDaemon(t, mock, newMemStore(), &out)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "opsbot online") }, 2*time.Second)
	mock.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
	if !strings.Contains(out.String(), "inbound channel closed") {
		t.Errorf("output = %s", out.String())
	}
}

func TestRun_InboundRoutedToRouter(t *testing.T) {
	mock := NewMockAdapter()
	store := newMemStore()
	var out syncBuffer
	d := newTestDaemon(t, mock, store, &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	waitFor(t, func() bool { return strings.Contains(out.String(), "opsbot online") }, 2*time.Second)

	mock.SimulateInbound(InboundMessage{Platform: "console", ChannelID: "C1", UserID: "U1", Text: "/help"})
	waitFor(t, func() bool { return mock.SentCount() > 0 }, 2*time.Second)

	cancel()
	<-done

	last, _ := mock.LastSent()
	if last.Text != helpText || last.ChannelID != "C1" {
		t.Errorf("reply = %+v", last)
	}
	if _, err := store.Get(context.Background(), testKey); err != nil {
		t.Errorf("session not stored: %v", err)
	}
}

func TestRun_BotUserIDFiltering(t *testing.T) {
	mock := NewMockAdapter()
	mock.SetBotUserID("BOT")
	var out syncBuffer
	d := newTestDaemon(t, mock, newMemStore(), &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	waitFor(t, func() bool { return strings.Contains(out.String(), "opsbot online") }, 2*time.Second)

	mock.SimulateInbound(InboundMessage{Platform: "console", ChannelID: "C1", UserID: "BOT", Text: "/help"})
	mock.SimulateInbound(InboundMessage{Platform: "console", ChannelID: "C1", UserID: "U1", Text: "/help"})
	waitFor(t, func() bool { return mock.SentCount() > 0 }, 2*time.Second)
	cancel()
	<-done

	if n := mock.SentCount(); n != 1 {
		t.Errorf("sent = %d, want 1 (own message ignored)", n)
	}
}

func TestRun_BadCleanupSchedule(t *testing.T) {
	mock := NewMockAdapter()
	var out syncBuffer
	d := newTestDaemon(t, mock, newMemStore(), &out)
	d.cfg.Store.CleanupCron = "every tuesday"

	err := d.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "schedule cleanup") {
		t.Errorf("Run() error = %v, want schedule error", err)
	}
}

// --- restart and cleanup tests ---

func seedSession(t *testing.T, store session.Store, key string, step session.Step, at time.Time) {
	t.Helper()
	s := session.New(at)
	if step != session.Idle {
		s.Transition(step, at)
	}
	if err := store.Set(context.Background(), key, s); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func TestResetInterrupted(t *testing.T) {
	mock := NewMockAdapter()
	if err := mock.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	store := newMemStore()
	seedSession(t, store, "console:C1:U1", session.ProvisionSelectOLT, t0)
	seedSession(t, store, "console:C2:U2", session.Idle, t0)
	seedSession(t, store, "telegram:T1:U3", session.CheckActions, t0)
	d := newTestDaemon(t, mock, store, &syncBuffer{})

	n, err := d.ResetInterrupted(context.Background())
	if err != nil {
		t.Fatalf("ResetInterrupted: %v", err)
	}
	if n != 1 {
		t.Errorf("reset = %d, want 1", n)
	}

	s, _ := store.Get(context.Background(), "console:C1:U1")
	if s.Step != session.Idle {
		t.Errorf("console session step = %s, want IDLE", s.Step)
	}
	other, _ := store.Get(context.Background(), "telegram:T1:U3")
	if other.Step != session.CheckActions {
		t.Errorf("telegram session step = %s, want untouched", other.Step)
	}

	sent := mock.AllSent()
	if len(sent) != 1 || sent[0].ChannelID != "C1" || sent[0].Text != msgRestarted {
		t.Errorf("sent = %+v", sent)
	}
}

func TestCleanup(t *testing.T) {
	store := newMemStore()
	cfg := testConfig(t)
	seedSession(t, store, "console:C1:old", session.CheckActions, t0.Add(-cfg.SessionMaxAge()-time.Hour))
	seedSession(t, store, "console:C1:new", session.CheckActions, t0.Add(-time.Minute))
	auditLog := &fakeAudit{}
	d, err := NewDaemon(DaemonOpts{
		Config:  cfg,
		Adapter: NewMockAdapter(),
		API:     newFakeAPI(),
		Store:   store,
		Audit:   auditLog,
		Now:     func() time.Time { return t0 },
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	if err := d.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	keys, _ := store.ListKeys(context.Background())
	if len(keys) != 1 || keys[0] != "console:C1:new" {
		t.Errorf("keys = %v, want only the recent session", keys)
	}
	if len(auditLog.cutoffs) != 1 || !auditLog.cutoffs[0].Equal(t0.Add(-cfg.AuditMaxAge())) {
		t.Errorf("prune cutoffs = %v", auditLog.cutoffs)
	}
}

func TestCronParser(t *testing.T) {
	if _, err := cronParser.Parse("0 3 * * *"); err != nil {
		t.Errorf("parse standard expression: %v", err)
	}
	if _, err := cronParser.Parse("0 0 3 * * *"); err == nil {
		t.Error("six-field expressions should be rejected")
	}
}

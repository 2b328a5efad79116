package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fiberline/opsbot/internal/audit"
	"github.com/fiberline/opsbot/internal/config"
	"github.com/fiberline/opsbot/internal/session"
	"go.uber.org/zap"
)

// AuditLog is an audit Recorder that can also purge old entries.
type AuditLog interface {
	audit.Recorder
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Daemon is the main opsbot process. It connects to a chat platform via an
// Adapter, resets conversations interrupted by the previous shutdown,
// schedules session cleanup, and feeds inbound messages through the
// Dispatcher to the Router.
type Daemon struct {
	cfg     *config.Config
	adapter Adapter
	api     API
	store   session.Store
	audit   AuditLog
	out     io.Writer
	log     *zap.Logger
	now     func() time.Time
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Config  *config.Config
	Adapter Adapter
	API     API
	Store   session.Store
	Audit   AuditLog         // optional
	Out     io.Writer        // defaults to os.Stdout
	Logger  *zap.Logger      // defaults to zap.NewNop()
	Now     func() time.Time // defaults to time.Now
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("bot: api is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	d := &Daemon{
		cfg:     opts.Config,
		adapter: opts.Adapter,
		api:     opts.API,
		store:   opts.Store,
		audit:   opts.Audit,
		out:     opts.Out,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if d.out == nil {
		d.out = os.Stdout
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// Run connects the adapter and processes inbound messages until ctx is
// cancelled or the adapter closes its channel. In-flight conversation turns
// are allowed to finish before the adapter is closed.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "opsbot connecting to %s...\n", d.cfg.Platform)
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	var recorder audit.Recorder
	if d.audit != nil {
		recorder = d.audit
	}
	router, err := NewRouter(RouterOpts{
		API:       d.api,
		Store:     d.store,
		Adapter:   d.adapter,
		Config:    d.cfg,
		Audit:     recorder,
		BotUserID: botUserID,
		Now:       d.now,
		Logger:    d.log,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build router: %w", err)
	}
	dispatcher := NewDispatcher(DispatcherOpts{
		Handle:    router.Handle,
		QueueSize: d.cfg.Session.QueueSize,
		Logger:    d.log,
	})

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	if n, err := d.ResetInterrupted(ctx); err != nil {
		d.log.Warn("reset interrupted sessions", zap.Error(err))
	} else if n > 0 {
		fmt.Fprintf(d.out, "opsbot: reset %d interrupted session(s)\n", n)
	}

	sched, err := d.scheduleCleanup(ctx)
	if err != nil {
		d.adapter.Close()
		return err
	}
	sched.Start()

	fmt.Fprintf(d.out, "opsbot online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "opsbot shutting down...\n")
			d.shutdown(dispatcher, sched)
			fmt.Fprintf(d.out, "opsbot stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "opsbot inbound channel closed\n")
				d.shutdown(dispatcher, sched)
				return nil
			}
			dispatcher.Submit(ctx, msg)
		}
	}
}

type stopper interface {
	Stop() context.Context
}

func (d *Daemon) shutdown(dispatcher *Dispatcher, sched stopper) {
	<-sched.Stop().Done()
	dispatcher.Wait()
	if err := d.adapter.Close(); err != nil {
		d.log.Warn("close adapter", zap.Error(err))
	}
}

// ResetInterrupted returns every mid-flow session of this platform to idle
// and tells its chat that the bot restarted. Buttons from before the
// restart are then rejected as expired. It returns the number of sessions
// reset.
func (d *Daemon) ResetInterrupted(ctx context.Context) (int, error) {
	keys, err := d.store.ListKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("bot: list sessions: %w", err)
	}
	var n int
	var errs []error
	for _, raw := range keys {
		k, err := session.ParseKey(raw)
		if err != nil || k.Platform != d.cfg.Platform {
			continue
		}
		s, err := d.store.Get(ctx, raw)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		if s.Step == session.Idle {
			continue
		}
		s.Reset()
		if err := d.store.Set(ctx, raw, s); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
		if err := d.adapter.Send(ctx, OutboundMessage{ChannelID: k.ChannelID, Text: msgRestarted}); err != nil {
			d.log.Warn("send restart notice", zap.String("key", raw), zap.Error(err))
		}
	}
	return n, errors.Join(errs...)
}

// Cleanup deletes sessions idle for longer than the configured maximum
// age, and audit entries past their retention.
func (d *Daemon) Cleanup(ctx context.Context) error {
	now := d.now()
	n, err := d.store.Cleanup(ctx, now.Add(-d.cfg.SessionMaxAge()))
	if err != nil {
		return fmt.Errorf("bot: cleanup sessions: %w", err)
	}
	d.log.Info("session cleanup", zap.Int64("deleted", n))
	if d.audit == nil {
		return nil
	}
	pruned, err := d.audit.Prune(ctx, now.Add(-d.cfg.AuditMaxAge()))
	if err != nil {
		return fmt.Errorf("bot: prune audit log: %w", err)
	}
	d.log.Info("audit prune", zap.Int64("deleted", pruned))
	return nil
}

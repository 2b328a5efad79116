package bot

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// scheduleCleanup registers Cleanup on the configured schedule. The
// returned scheduler is not started.
func (d *Daemon) scheduleCleanup(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(d.cfg.Store.CleanupCron, func() {
		if err := d.Cleanup(ctx); err != nil {
			d.log.Warn("scheduled cleanup", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bot: schedule cleanup %q: %w", d.cfg.Store.CleanupCron, err)
	}
	return c, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiberline/opsbot/internal/admin"
	"github.com/fiberline/opsbot/internal/backend"
	"github.com/fiberline/opsbot/internal/bot"
	"github.com/fiberline/opsbot/internal/bot/console"
	discordadapter "github.com/fiberline/opsbot/internal/bot/discord"
	slackadapter "github.com/fiberline/opsbot/internal/bot/slack"
	telegramadapter "github.com/fiberline/opsbot/internal/bot/telegram"
	"github.com/fiberline/opsbot/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the opsbot daemon",
		Long:  "Connects to the configured chat platform and serves conversations until interrupted. Starts the admin API when admin.addr is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath(cmd))
		},
	}
}

func runStart(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	api, err := backend.New(backend.ClientOpts{
		BaseURL:      cfg.Backend.BaseURL,
		Timeout:      cfg.BackendTimeout(),
		ShortTimeout: cfg.BackendShortTimeout(),
		Logger:       log.Named("backend"),
	})
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg, log.Named(cfg.Platform))
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Config:  cfg,
		Adapter: adapter,
		API:     api,
		Store:   st.store,
		Audit:   st.audit,
		Out:     cmd.OutOrStdout(),
		Logger:  log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The daemon returning, for example at end of console input, stops
		// the admin server too.
		defer stop()
		return daemon.Run(ctx)
	})
	if cfg.Admin.Addr != "" {
		g.Go(func() error {
			return admin.Start(ctx, admin.StartOpts{
				Addr:    cfg.Admin.Addr,
				Store:   st.store,
				Actions: st.audit,
				Out:     cmd.OutOrStdout(),
				Logger:  log.Named("admin"),
			})
		})
	}
	return g.Wait()
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, log *zap.Logger) (bot.Adapter, error) {
	switch cfg.Platform {
	case config.PlatformTelegram:
		return telegramadapter.New(telegramadapter.AdapterOpts{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeout,
			Logger:      log,
		})
	case config.PlatformSlack:
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.Channel,
			Logger:    log,
		})
	case config.PlatformDiscord:
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.Channel,
			Logger:    log,
		})
	case config.PlatformConsole:
		return console.New(console.Stdio())
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}

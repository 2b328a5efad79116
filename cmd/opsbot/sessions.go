package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fiberline/opsbot/internal/config"
	"github.com/fiberline/opsbot/internal/session"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain stored conversation sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsResetCmd())
	cmd.AddCommand(newSessionsCleanupCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, configPath(cmd))
		},
	}
}

func newSessionsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Delete one session",
		Long:  "Deletes the session stored under key (platform:channel:user). The user starts from IDLE on their next message.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsReset(cmd, configPath(cmd), args[0])
		},
	}
}

func newSessionsCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stale sessions and old action log entries",
		Long:  "Deletes sessions not updated within store.max_age_hours and action log entries older than store.audit_max_age_days.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsCleanup(cmd, configPath(cmd))
		},
	}
}

func loadStorage(path string) (*config.Config, *storage, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func runSessionsList(cmd *cobra.Command, path string) error {
	_, st, err := loadStorage(path)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.store.List(context.Background())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTEP\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Step, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runSessionsReset(cmd *cobra.Command, path, key string) error {
	if _, err := session.ParseKey(key); err != nil {
		return err
	}
	_, st, err := loadStorage(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.store.Delete(context.Background(), key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset\n", key)
	return nil
}

func runSessionsCleanup(cmd *cobra.Command, path string) error {
	cfg, st, err := loadStorage(path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	n, err := st.store.Cleanup(ctx, now.Add(-cfg.SessionMaxAge()))
	if err != nil {
		return err
	}
	pruned, err := st.audit.Prune(ctx, now.Add(-cfg.AuditMaxAge()))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale session(s), %d old action log row(s)\n", n, pruned)
	return nil
}

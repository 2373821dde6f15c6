package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (c *Cli) compactCommand() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:     "compact",
		GroupID: "audit",
		Short:   "Remove acknowledged operations older than the retention window",
		Long: `Remove synced operations and applied markers older than the retention
window. Unsynced and quarantined operations are never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCompact(cmd.Context(), retention)
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "Retention window (default: maintenance.retention from config)")
	return cmd
}

func (c *Cli) runCompact(ctx context.Context, retention time.Duration) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	if retention <= 0 {
		retention = app.cfg.Maintenance.Retention
	}
	before := c.now().Add(-retention)

	removed, err := app.engine.Compact(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to compact operation log: %w", err)
	}

	c.io.Printf("✓ Removed %s synced operation(s) older than %s\n",
		humanize.Comma(int64(removed)), humanize.Time(before))
	return nil
}

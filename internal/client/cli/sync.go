package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/coursesync/internal/client/engine"
)

func (c *Cli) syncCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Run one synchronization cycle now",
		Long: `Push queued local operations to the server, apply the server's inbound
batch and resolve conflicts. Transport failures leave the queue intact:
nothing is lost, the next cycle retries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd.Context(), format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) runSync(ctx context.Context, format string) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	result, err := app.service.SyncNow(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	return c.render(format, result, func() error {
		c.io.Println("✓ Synchronization completed")
		c.io.Println()
		c.printCycle(result)
		return nil
	})
}

func (c *Cli) printCycle(r *engine.CycleResult) {
	c.io.Printf("Rounds:             %d\n", r.Rounds)
	c.io.Printf("Pushed to server:   %d operation(s)\n", r.Pushed)
	c.io.Printf("Acknowledged:       %d\n", r.Acknowledged)
	c.io.Printf("Pulled from server: %d operation(s)\n", r.Pulled)
	c.io.Printf("Applied locally:    %d\n", r.Applied)
	if r.Replayed > 0 {
		c.io.Printf("Already applied:    %d\n", r.Replayed)
	}
	if r.Conflicts > 0 {
		c.io.Printf("Conflicts resolved: %d\n", r.Conflicts)
	}
	if r.Duplicates > 0 {
		c.io.Printf("Duplicates kept:    %d\n", r.Duplicates)
	}
	if r.Skipped > 0 {
		c.io.Printf("Skipped (errors):   %d\n", r.Skipped)
	}
	if r.Rejected+r.Quarantined > 0 {
		c.io.Printf("Quarantined:        %d (see 'coursesync quarantine')\n", r.Rejected+r.Quarantined)
	}
	c.io.Printf("Server cursor:      %d\n", r.Cursor)
	c.io.Printf("Duration:           %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func (c *Cli) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		GroupID: "sync",
		Short:   "Run the background sync service until interrupted",
		Long: `Run sync cycles on the configured interval, immediately on server
notifications, and compact the operation log on the maintenance interval.
Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runService(cmd.Context())
		},
	}
}

func (c *Cli) runService(ctx context.Context) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.service.Run(gctx)
	})

	// недоступный сервер не мешает работе офлайн
	if app.client != nil {
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(gctx, app.cfg.Sync.RequestTimeout)
			defer cancel()

			health, err := app.client.Health(hctx)
			if err != nil {
				app.logger.Warn("Sync server is not reachable, working offline", "error", err)
				return nil
			}
			app.logger.Info("Sync server is reachable", "version", health.Version)
			return nil
		})
	}

	return g.Wait()
}

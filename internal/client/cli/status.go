package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// statusView сводка состояния синхронизации
type statusView struct {
	LastSync     *time.Time                  `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	Counts       map[models.EntityStatus]int `json:"counts" yaml:"counts"`
	DeviceID     string                      `json:"device_id" yaml:"device_id"`
	UserID       string                      `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	ServerURL    string                      `json:"server_url" yaml:"server_url"`
	DeletePolicy string                      `json:"delete_policy" yaml:"delete_policy"`
	LastError    string                      `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Clock        map[string]int64            `json:"vector_clock" yaml:"vector_clock"`
	Pending      int                         `json:"pending_operations" yaml:"pending_operations"`
	Conflicts    int                         `json:"conflicts" yaml:"conflicts"`
	Quarantined  int                         `json:"quarantined" yaml:"quarantined"`
}

func (c *Cli) statusCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show synchronization status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus(cmd.Context(), format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) collectStatus(ctx context.Context, app *App) (*statusView, error) {
	state, err := app.engine.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	view := &statusView{
		Counts:       state.Counts(),
		DeviceID:     app.DeviceID(),
		UserID:       app.oplog.UserID(),
		ServerURL:    app.cfg.ServerURL,
		DeletePolicy: string(app.resolver.Policy()),
		Clock:        app.oplog.Clock().Snapshot(),
	}
	if !state.LastSyncTimestamp.IsZero() {
		ts := state.LastSyncTimestamp
		view.LastSync = &ts
	}

	err = app.store.View(ctx, func(tx storage.Tx) error {
		if view.Pending, err = tx.CountPending(); err != nil {
			return err
		}
		if view.LastError, err = tx.GetLastError(); err != nil {
			return err
		}
		conflicts, err := tx.ListConflicts()
		if err != nil {
			return err
		}
		view.Conflicts = len(conflicts)

		quarantined, err := tx.ListQuarantined()
		if err != nil {
			return err
		}
		view.Quarantined = len(quarantined)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}
	return view, nil
}

func (c *Cli) runStatus(ctx context.Context, format string) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	view, err := c.collectStatus(ctx, app)
	if err != nil {
		return err
	}

	return c.render(format, view, func() error {
		c.io.Println("=== Sync Status ===")
		c.io.Println()
		c.io.Printf("Device:        %s\n", view.DeviceID)
		if view.UserID != "" {
			c.io.Printf("User:          %s\n", view.UserID)
		}
		c.io.Printf("Server:        %s\n", view.ServerURL)
		c.io.Printf("Delete policy: %s\n", view.DeletePolicy)
		c.io.Printf("Clock:         %s\n", app.oplog.Clock().Snapshot())

		if view.LastSync != nil {
			c.io.Printf("Last sync:     %s (%s)\n", humanize.RelTime(*view.LastSync, c.now(), "ago", "from now"),
				view.LastSync.Format(time.RFC3339))
		} else {
			c.io.Println("Last sync:     never")
		}
		if view.LastError != "" {
			c.io.Printf("Last error:    %s\n", view.LastError)
		}

		c.io.Println()
		if view.Pending > 0 {
			c.io.Printf("⚠️  Pending sync: %s operation(s) waiting to be synchronized\n", humanize.Comma(int64(view.Pending)))
			c.io.Println("Run 'coursesync sync' to synchronize with server.")
		} else {
			c.io.Println("✓ All local changes synchronized with server")
		}

		if len(view.Counts) > 0 {
			c.io.Println()
			c.io.Println("Entities by status:")
			statuses := make([]string, 0, len(view.Counts))
			for s := range view.Counts {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				c.io.Printf("  %-15s %s\n", s, humanize.Comma(int64(view.Counts[models.EntityStatus(s)])))
			}
		}

		if view.Conflicts > 0 || view.Quarantined > 0 {
			c.io.Println()
			c.io.Printf("Conflicts resolved: %d (see 'coursesync conflicts')\n", view.Conflicts)
			c.io.Printf("Quarantined:        %d (see 'coursesync quarantine')\n", view.Quarantined)
		}
		return nil
	})
}

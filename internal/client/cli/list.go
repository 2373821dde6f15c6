package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/iudanet/coursesync/internal/client/storage"
)

func (c *Cli) listCommand() *cobra.Command {
	var (
		format      string
		pendingOnly bool
		withDeleted bool
	)
	cmd := &cobra.Command{
		Use:     "list [entity-type]",
		GroupID: "data",
		Short:   "List local entities with their sync status",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entityType string
			if len(args) == 1 {
				entityType = args[0]
			}
			return c.runList(cmd.Context(), entityType, pendingOnly, withDeleted, format)
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Show only entities with unsynchronized changes")
	cmd.Flags().BoolVar(&withDeleted, "deleted", false, "Include tombstones")
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) runList(ctx context.Context, entityType string, pendingOnly, withDeleted bool, format string) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	views := []entityView{}
	err = app.store.View(ctx, func(tx storage.Tx) error {
		entities, err := tx.ListEntities(entityType)
		if err != nil {
			return err
		}
		for _, e := range entities {
			status, err := tx.GetStatus(e.Type, e.ID)
			if err != nil && !errors.Is(err, storage.ErrStatusNotFound) {
				return err
			}
			// pending_delete показываем даже без --deleted
			if e.Deleted && !withDeleted && !status.Pending() {
				continue
			}
			if pendingOnly && !status.Pending() {
				continue
			}
			views = append(views, newEntityView(e, status))
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Type != views[j].Type {
			return views[i].Type < views[j].Type
		}
		return views[i].ID < views[j].ID
	})

	return c.render(format, views, func() error {
		if len(views) == 0 {
			c.io.Println("No entities found.")
			return nil
		}

		w := c.table()
		_, _ = fmt.Fprintln(w, "TYPE\tID\tSTATUS\tUPDATED")
		for _, v := range views {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Type, v.ID, v.Status, v.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		c.io.Println()
		c.io.Printf("Total: %d\n", len(views))
		return nil
	})
}

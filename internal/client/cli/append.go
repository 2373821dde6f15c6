package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/coursesync/internal/client/oplog"
	"github.com/iudanet/coursesync/internal/models"
)

type appendFlags struct {
	payload string
	file    string
	format  string
}

func (c *Cli) appendCommand() *cobra.Command {
	var flags appendFlags
	cmd := &cobra.Command{
		Use:     "append <entity-type> <create|update|delete|reference> [entity-id]",
		GroupID: "data",
		Short:   "Record a local change in the operation log",
		Long: `Append a local operation. The change is applied to the local database
immediately and queued for the next sync cycle.

entity-id may be omitted for create: a provisional id is generated.`,
		Example: `  coursesync append course create c1 --payload '{"title":"Go basics"}'
  coursesync append post update p7 --file post.json
  cat topic.json | coursesync append topic create --file -`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opType, err := models.ParseOperationType(args[1])
			if err != nil {
				return err
			}
			var entityID string
			if len(args) == 3 {
				entityID = args[2]
			}
			return c.runAppend(cmd.Context(), args[0], opType, entityID, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.payload, "payload", "p", "", "JSON payload")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Read JSON payload from file ('-' for stdin)")
	addFormatFlag(cmd, &flags.format)
	return cmd
}

func (c *Cli) deleteCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "delete <entity-type> <entity-id>",
		GroupID: "data",
		Short:   "Delete an entity locally and queue the deletion",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAppend(cmd.Context(), args[0], models.OperationDelete, args[1], appendFlags{format: format})
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) runAppend(ctx context.Context, entityType string, opType models.OperationType, entityID string, flags appendFlags) error {
	payload, err := c.readPayload(flags.payload, flags.file)
	if err != nil {
		return err
	}

	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	op, err := app.engine.Append(ctx, oplog.Mutation{
		Type:       opType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}

	return c.render(flags.format, op, func() error {
		c.io.Printf("✓ %s %s/%s queued for sync\n", op.OperationType, op.EntityType, op.EntityID)
		c.io.Printf("Operation: %s\n", op.ID)
		c.io.Printf("Clock:     %s\n", op.VectorClock)
		return nil
	})
}

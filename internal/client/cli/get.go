package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

// entityView представление сущности для вывода
type entityView struct {
	UpdatedAt       time.Time           `json:"updated_at" yaml:"updated_at"`
	Type            string              `json:"entity_type" yaml:"entity_type"`
	ID              string              `json:"entity_id" yaml:"entity_id"`
	Status          models.EntityStatus `json:"status" yaml:"status"`
	LastOperationID string              `json:"last_operation_id,omitempty" yaml:"last_operation_id,omitempty"`
	Payload         json.RawMessage     `json:"payload,omitempty" yaml:"-"`
	PayloadText     string              `json:"-" yaml:"payload,omitempty"`
	References      []referenceView     `json:"references,omitempty" yaml:"references,omitempty"`
	Deleted         bool                `json:"deleted" yaml:"deleted"`
}

type referenceView struct {
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	OperationID string          `json:"operation_id" yaml:"operation_id"`
	DeviceID    string          `json:"device_id" yaml:"device_id"`
	Payload     json.RawMessage `json:"payload,omitempty" yaml:"-"`
	PayloadText string          `json:"-" yaml:"payload,omitempty"`
}

func newEntityView(e *models.Entity, status models.EntityStatus) entityView {
	return entityView{
		UpdatedAt:       e.UpdatedAt,
		Type:            e.Type,
		ID:              e.ID,
		Status:          status,
		LastOperationID: e.LastOperationID,
		Payload:         e.Payload,
		PayloadText:     string(e.Payload),
		Deleted:         e.Deleted,
	}
}

func (c *Cli) getCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "get <entity-type> <entity-id>",
		GroupID: "data",
		Short:   "Show an entity with its sync status and references",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGet(cmd.Context(), args[0], args[1], format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) runGet(ctx context.Context, entityType, entityID, format string) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	var view entityView
	err = app.store.View(ctx, func(tx storage.Tx) error {
		status, err := tx.GetStatus(entityType, entityID)
		if err != nil && !errors.Is(err, storage.ErrStatusNotFound) {
			return err
		}

		entity, err := tx.GetEntity(entityType, entityID)
		switch {
		case errors.Is(err, storage.ErrEntityNotFound):
			// только ссылки, сама сущность еще не пришла
			entity = &models.Entity{Type: entityType, ID: entityID}
		case err != nil:
			return err
		}
		view = newEntityView(entity, status)

		refs, err := tx.ListReferences(entityType, entityID)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			view.References = append(view.References, referenceView{
				CreatedAt:   ref.CreatedAt,
				OperationID: ref.OperationID,
				DeviceID:    ref.DeviceID,
				Payload:     ref.Payload,
				PayloadText: string(ref.Payload),
			})
		}

		if view.Status == "" && view.LastOperationID == "" && len(view.References) == 0 {
			return fmt.Errorf("%w: %s/%s", storage.ErrEntityNotFound, entityType, entityID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.render(format, view, func() error {
		c.io.Printf("=== %s/%s ===\n", view.Type, view.ID)
		c.io.Println()
		c.io.Printf("Status:         %s\n", view.Status)
		if view.Deleted {
			c.io.Println("Deleted:        yes (tombstone)")
		}
		if view.LastOperationID != "" {
			c.io.Printf("Last operation: %s\n", view.LastOperationID)
			c.io.Printf("Updated:        %s\n", view.UpdatedAt.Format(time.RFC3339))
		}
		if len(view.Payload) > 0 {
			c.io.Printf("Payload:        %s\n", view.Payload)
		}
		if len(view.References) > 0 {
			c.io.Println()
			c.io.Printf("References (%d):\n", len(view.References))
			for _, ref := range view.References {
				c.io.Printf("  %s from %s: %s\n", shortID(ref.OperationID), ref.DeviceID, ref.Payload)
			}
		}
		return nil
	})
}

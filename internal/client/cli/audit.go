package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/coursesync/internal/client/storage"
	"github.com/iudanet/coursesync/internal/models"
)

type conflictsView struct {
	Conflicts   []*models.ConflictRecord `json:"conflicts" yaml:"conflicts"`
	SideRecords []sideRecordView         `json:"side_records,omitempty" yaml:"side_records,omitempty"`
}

type sideRecordView struct {
	models.SideRecord `yaml:",inline"`

	PayloadText string `json:"-" yaml:"payload,omitempty"`
}

// quarantineView плоское представление: SyncOperation не размечен для yaml
type quarantineView struct {
	QuarantinedAt time.Time               `json:"quarantined_at" yaml:"quarantined_at"`
	Timestamp     time.Time               `json:"timestamp" yaml:"timestamp"`
	VectorClock   map[string]int64        `json:"vector_clock" yaml:"vector_clock"`
	Source        models.QuarantineSource `json:"source" yaml:"source"`
	Reason        string                  `json:"reason" yaml:"reason"`
	OperationID   string                  `json:"operation_id" yaml:"operation_id"`
	DeviceID      string                  `json:"device_id" yaml:"device_id"`
	OperationType models.OperationType    `json:"operation_type" yaml:"operation_type"`
	EntityType    string                  `json:"entity_type" yaml:"entity_type"`
	EntityID      string                  `json:"entity_id" yaml:"entity_id"`
	Payload       json.RawMessage         `json:"payload,omitempty" yaml:"-"`
	PayloadText   string                  `json:"-" yaml:"payload,omitempty"`
}

func (c *Cli) conflictsCommand() *cobra.Command {
	var (
		format      string
		sideRecords bool
	)
	cmd := &cobra.Command{
		Use:     "conflicts",
		GroupID: "audit",
		Short:   "Show the conflict resolution audit log",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConflicts(cmd.Context(), sideRecords, format)
		},
	}
	cmd.Flags().BoolVar(&sideRecords, "side-records", false, "Also show preserved losing payloads")
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) runConflicts(ctx context.Context, withSide bool, format string) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	view := conflictsView{Conflicts: []*models.ConflictRecord{}}
	err = app.store.View(ctx, func(tx storage.Tx) error {
		records, err := tx.ListConflicts()
		if err != nil {
			return err
		}
		view.Conflicts = append(view.Conflicts, records...)

		if !withSide {
			return nil
		}
		side, err := tx.ListSideRecords()
		if err != nil {
			return err
		}
		for _, rec := range side {
			view.SideRecords = append(view.SideRecords, sideRecordView{SideRecord: *rec, PayloadText: string(rec.Payload)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read conflict log: %w", err)
	}

	return c.render(format, view, func() error {
		if len(view.Conflicts) == 0 {
			c.io.Println("No conflicts recorded.")
		} else {
			w := c.table()
			_, _ = fmt.Fprintln(w, "RESOLVED\tTYPE\tENTITY\tRESOLUTION\tLOCAL\tREMOTE\tREASON")
			for _, r := range view.Conflicts {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%s\t%s\t%s\n",
					r.ResolvedAt.Format("2006-01-02 15:04:05"), r.Type, r.EntityType, r.EntityID,
					r.Resolution, shortID(r.LocalOperationID), shortID(r.RemoteOperationID), r.Reason)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if withSide && len(view.SideRecords) > 0 {
			c.io.Println()
			c.io.Println("Preserved payloads:")
			for _, s := range view.SideRecords {
				c.io.Printf("  %s/%s from %s (%s): %s\n", s.EntityType, s.EntityID, s.DeviceID, s.Reason, s.Payload)
			}
		}
		return nil
	})
}

func (c *Cli) quarantineCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "quarantine",
		GroupID: "audit",
		Short:   "List operations removed from the normal sync flow",
		Long: `List local operations rejected by the server and inbound operations that
could not be applied. Quarantined operations are never retried automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuarantine(cmd.Context(), format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func (c *Cli) runQuarantine(ctx context.Context, format string) error {
	app, err := c.application(ctx)
	if err != nil {
		return err
	}

	views := []quarantineView{}
	err = app.store.View(ctx, func(tx storage.Tx) error {
		list, err := tx.ListQuarantined()
		if err != nil {
			return err
		}
		for _, q := range list {
			v := quarantineView{
				QuarantinedAt: q.QuarantinedAt,
				Source:        q.Source,
				Reason:        q.Reason,
			}
			if op := q.Operation; op != nil {
				v.Timestamp = op.Timestamp
				v.VectorClock = op.VectorClock
				v.OperationID = op.ID
				v.DeviceID = op.DeviceID
				v.OperationType = op.OperationType
				v.EntityType = op.EntityType
				v.EntityID = op.EntityID
				v.Payload = op.Payload
				v.PayloadText = string(op.Payload)
			}
			views = append(views, v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read quarantine: %w", err)
	}

	return c.render(format, views, func() error {
		if len(views) == 0 {
			c.io.Println("Quarantine is empty.")
			return nil
		}
		w := c.table()
		_, _ = fmt.Fprintln(w, "WHEN\tSOURCE\tOPERATION\tTYPE\tENTITY\tREASON")
		for _, v := range views {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s/%s\t%s\n",
				v.QuarantinedAt.Format("2006-01-02 15:04:05"), v.Source, shortID(v.OperationID),
				v.OperationType, v.EntityType, v.EntityID, v.Reason)
		}
		return w.Flush()
	})
}

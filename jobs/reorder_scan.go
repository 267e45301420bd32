package jobs

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// ItemLister is the slice of the inventory service the scan needs.
type ItemLister interface {
	ListItems(ctx context.Context, filter inventory.ItemFilter) ([]inventory.Item, int, error)
}

// ReorderScanJob logs and audits every item whose stock has fallen to its
// reorder point. The scan only flags; raising purchase intents stays a
// human decision.
type ReorderScanJob struct {
	inventory ItemLister
	audit     shared.AuditPort
	clock     shared.Clock
	logger    *slog.Logger
}

// NewReorderScanJob constructs the job.
func NewReorderScanJob(lister ItemLister, audit shared.AuditPort, clock shared.Clock, logger *slog.Logger) *ReorderScanJob {
	return &ReorderScanJob{inventory: lister, audit: audit, clock: clock, logger: logger}
}

const reorderScanPageSize = 200

// Handle processes TaskInventoryReorderScan tasks.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	offset := 0
	flagged := 0
	for {
		items, total, err := j.inventory.ListItems(ctx, inventory.ItemFilter{
			NeedsReorder: true,
			Limit:        reorderScanPageSize,
			Offset:       offset,
		})
		if err != nil {
			j.logger.Error("reorder scan", slog.Any("error", err))
			return err
		}
		for _, item := range items {
			j.logger.Warn("item needs reorder",
				slog.Int64("item_id", item.ID),
				slog.String("sku", item.SKU),
				slog.Int64("current_stock", item.CurrentStock),
				slog.Int64("reorder_point", item.ReorderPoint))
			if j.audit != nil {
				_ = j.audit.Record(ctx, shared.AuditLog{
					Action:   "reorder_flagged",
					Entity:   "item",
					EntityID: strconv.FormatInt(item.ID, 10),
					Meta: map[string]any{
						"current_stock": item.CurrentStock,
						"reorder_point": item.ReorderPoint,
					},
					At: j.clock.Now(),
				})
			}
			flagged++
		}
		offset += len(items)
		if len(items) == 0 || offset >= total {
			break
		}
	}
	if flagged > 0 {
		j.logger.Info("reorder scan finished", slog.Int("flagged", flagged))
	}
	return nil
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	GetMovement(ctx context.Context, id int64) (StockMovement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateItem(ctx context.Context, item Item) (int64, error)
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	SetItemStock(ctx context.Context, id int64, stock int64) error
	UpdateItemLevels(ctx context.Context, id int64, minimum int64, maximum *int64, reorder int64) error
	SoftDeleteItem(ctx context.Context, id int64) error
	CreateMovement(ctx context.Context, m StockMovement) (int64, error)
	GetMovementForUpdate(ctx context.Context, id int64) (StockMovement, error)
	SetMovementStatus(ctx context.Context, id int64, status MovementStatus, approver int64, remarks string) error
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Search       string
	LowStock     bool
	NeedsReorder bool
	Limit        int
	Offset       int
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ItemID    int64
	Status    *MovementStatus
	OwnerType string
	Limit     int
	Offset    int
}

// Service coordinates stock ledger operations.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	clock shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, clock shared.Clock) *Service {
	return &Service{repo: repo, audit: audit, clock: clock}
}

// CreateItemInput describes a new item.
type CreateItemInput struct {
	SKU          string
	Name         string
	Unit         string
	OpeningStock int64
	MinimumStock int64
	MaximumStock *int64
	ReorderPoint int64
	ActorID      int64
}

// CreateItem validates stock levels and persists the item.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.SKU == "" || input.Name == "" {
		return Item{}, errors.New("inventory: sku and name required")
	}
	if input.OpeningStock < 0 || input.MinimumStock < 0 || input.ReorderPoint < 0 {
		return Item{}, errors.New("inventory: stock levels must not be negative")
	}
	if input.MaximumStock != nil && *input.MaximumStock <= input.MinimumStock {
		return Item{}, ErrInvalidStockLevels
	}

	item := Item{
		SKU:          input.SKU,
		Name:         input.Name,
		Unit:         input.Unit,
		CurrentStock: input.OpeningStock,
		MinimumStock: input.MinimumStock,
		MaximumStock: input.MaximumStock,
		ReorderPoint: input.ReorderPoint,
		CreatedBy:    input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("inventory: create item: %w", err)
	}
	return item, nil
}

// UpdateLevelsInput changes an item's control levels.
type UpdateLevelsInput struct {
	MinimumStock int64
	MaximumStock *int64
	ReorderPoint int64
}

// UpdateItemLevels rewrites minimum/maximum/reorder levels.
func (s *Service) UpdateItemLevels(ctx context.Context, id int64, input UpdateLevelsInput) (Item, error) {
	if input.MinimumStock < 0 || input.ReorderPoint < 0 {
		return Item{}, errors.New("inventory: stock levels must not be negative")
	}
	if input.MaximumStock != nil && *input.MaximumStock <= input.MinimumStock {
		return Item{}, ErrInvalidStockLevels
	}
	if _, err := s.repo.GetItem(ctx, id); err != nil {
		return Item{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateItemLevels(ctx, id, input.MinimumStock, input.MaximumStock, input.ReorderPoint)
	})
	if err != nil {
		return Item{}, fmt.Errorf("inventory: update levels: %w", err)
	}
	return s.repo.GetItem(ctx, id)
}

// DeleteItem soft-deletes an item so historical movements keep resolving.
func (s *Service) DeleteItem(ctx context.Context, id int64, actorID int64) error {
	if _, err := s.repo.GetItem(ctx, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDeleteItem(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("inventory: delete item: %w", err)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "item_deleted",
			Entity:   "item",
			EntityID: strconv.FormatInt(id, 10),
			At:       s.clock.Now(),
		})
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns a filtered item listing.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filter)
}

// MovementInput describes a requested movement.
type MovementInput struct {
	ItemID      int64
	Type        MovementType
	Quantity    int64
	TargetStock *int64
	Owner       Owner
	Remarks     string
	ActorID     int64
}

// RecordMovement appends a pending ledger entry. Stock is untouched until
// the movement is approved.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (StockMovement, error) {
	if !validTypes[input.Type] {
		return StockMovement{}, ErrInvalidMovementType
	}
	if input.Type == MovementAdjustment {
		if input.TargetStock == nil || *input.TargetStock < 0 {
			return StockMovement{}, ErrMissingTarget
		}
	} else if input.Quantity <= 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	if _, err := s.repo.GetItem(ctx, input.ItemID); err != nil {
		return StockMovement{}, err
	}

	movement := StockMovement{
		ItemID:      input.ItemID,
		Type:        input.Type,
		Quantity:    input.Quantity,
		TargetStock: input.TargetStock,
		Owner:       input.Owner,
		Status:      MovementPending,
		Remarks:     input.Remarks,
		RequestedBy: input.ActorID,
		CreatedAt:   s.clock.Now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return StockMovement{}, fmt.Errorf("inventory: record movement: %w", err)
	}
	s.recordAudit(ctx, "movement_recorded", movement.ID, input.ActorID, map[string]any{
		"item_id": input.ItemID,
		"type":    string(input.Type),
	})
	return movement, nil
}

// ApproveMovement applies a pending movement to the item's stock. The item
// row is locked for the duration so concurrent movements cannot lose
// updates, and the check-then-apply is atomic: on failure stock is
// unchanged and the movement stays pending.
func (s *Service) ApproveMovement(ctx context.Context, movementID int64, actorID int64) (Item, error) {
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if movement.Status != MovementPending {
			return ErrMovementFinal
		}
		item, err := tx.GetItemForUpdate(ctx, movement.ItemID)
		if err != nil {
			return err
		}
		next, err := nextStock(item.CurrentStock, movement)
		if err != nil {
			return err
		}
		if err := tx.SetItemStock(ctx, item.ID, next); err != nil {
			return err
		}
		if err := tx.SetMovementStatus(ctx, movementID, MovementApproved, actorID, movement.Remarks); err != nil {
			return err
		}
		item.CurrentStock = next
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, "movement_approved", movementID, actorID, map[string]any{
		"item_id":       updated.ID,
		"current_stock": updated.CurrentStock,
	})
	return updated, nil
}

// RejectMovement marks a pending movement rejected without touching stock.
func (s *Service) RejectMovement(ctx context.Context, movementID int64, actorID int64, remarks string) error {
	return s.finishMovement(ctx, movementID, MovementRejected, actorID, remarks)
}

// CancelMovement marks a pending movement cancelled without touching stock.
func (s *Service) CancelMovement(ctx context.Context, movementID int64, actorID int64, remarks string) error {
	return s.finishMovement(ctx, movementID, MovementCancelled, actorID, remarks)
}

func (s *Service) finishMovement(ctx context.Context, movementID int64, status MovementStatus, actorID int64, remarks string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if movement.Status != MovementPending {
			return ErrMovementFinal
		}
		return tx.SetMovementStatus(ctx, movementID, status, actorID, remarks)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "movement_"+string(status), movementID, actorID, nil)
	return nil
}

// GetMovement retrieves a ledger entry.
func (s *Service) GetMovement(ctx context.Context, id int64) (StockMovement, error) {
	return s.repo.GetMovement(ctx, id)
}

// ListMovements returns the ledger for an item or owner.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	return s.repo.ListMovements(ctx, filter)
}

func nextStock(current int64, m StockMovement) (int64, error) {
	switch m.Type {
	case MovementIn, MovementReturn:
		return current + m.Quantity, nil
	case MovementOut, MovementDamage:
		if m.Quantity > current {
			return 0, &InsufficientStockError{Available: current, Requested: m.Quantity}
		}
		return current - m.Quantity, nil
	case MovementTransfer:
		// location-neutral: logged for traceability, no net change
		return current, nil
	case MovementAdjustment:
		if m.TargetStock == nil || *m.TargetStock < 0 {
			return 0, ErrMissingTarget
		}
		return *m.TargetStock, nil
	default:
		return 0, ErrInvalidMovementType
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, movementID, actorID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movementID, 10),
		Meta:     meta,
		At:       s.clock.Now(),
	})
}

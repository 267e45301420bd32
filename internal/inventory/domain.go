package inventory

import (
	"errors"
	"fmt"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementDamage     MovementType = "damage"
)

// MovementStatus is the approval state of a movement. Only approved
// movements mutate an item's stock.
type MovementStatus string

const (
	MovementPending   MovementStatus = "pending"
	MovementApproved  MovementStatus = "approved"
	MovementRejected  MovementStatus = "rejected"
	MovementCancelled MovementStatus = "cancelled"
)

// Item is a stocked article. Stock levels are non-negative integers and
// maximum_stock must exceed minimum_stock when set.
type Item struct {
	ID           int64      `json:"id"`
	SKU          string     `json:"sku"`
	Name         string     `json:"name"`
	Unit         string     `json:"unit"`
	CurrentStock int64      `json:"current_stock"`
	MinimumStock int64      `json:"minimum_stock"`
	MaximumStock *int64     `json:"maximum_stock,omitempty"`
	ReorderPoint int64      `json:"reorder_point"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// NeedsReorder reports whether stock has fallen to the reorder point.
// The comparison is deliberately inclusive.
func (i Item) NeedsReorder() bool {
	return i.CurrentStock <= i.ReorderPoint
}

// HasLowStock reports whether stock has fallen to the minimum level.
func (i Item) HasLowStock() bool {
	return i.CurrentStock <= i.MinimumStock
}

// HasExcessStock reports whether stock exceeds the maximum level, when set.
func (i Item) HasExcessStock() bool {
	return i.MaximumStock != nil && i.CurrentStock > *i.MaximumStock
}

// Owner identifies the document a movement belongs to, e.g. a dispatch or
// a goods receipt note. Owners are resolved by type tag, never reflection.
type Owner struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// StockMovement is one append-only ledger entry. Approved movements are
// immutable.
type StockMovement struct {
	ID          int64          `json:"id"`
	ItemID      int64          `json:"item_id"`
	Type        MovementType   `json:"type"`
	Quantity    int64          `json:"quantity"`
	TargetStock *int64         `json:"target_stock,omitempty"`
	Owner       Owner          `json:"owner"`
	Status      MovementStatus `json:"status"`
	Remarks     string         `json:"remarks,omitempty"`
	RequestedBy int64          `json:"requested_by"`
	ApprovedBy  *int64         `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time     `json:"approved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

var (
	// ErrNotFound indicates a missing item or movement.
	ErrNotFound = errors.New("inventory: not found")
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: invalid movement type")
	// ErrMovementFinal indicates the movement already left pending.
	ErrMovementFinal = errors.New("inventory: movement no longer pending")
	// ErrInvalidStockLevels indicates maximum_stock <= minimum_stock.
	ErrInvalidStockLevels = errors.New("inventory: maximum stock must exceed minimum stock")
	// ErrMissingTarget indicates an adjustment without a target level.
	ErrMissingTarget = errors.New("inventory: adjustment requires a target stock")
)

// InsufficientStockError reports a decrease beyond the available stock.
type InsufficientStockError struct {
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

var validTypes = map[MovementType]bool{
	MovementIn:         true,
	MovementOut:        true,
	MovementTransfer:   true,
	MovementAdjustment: true,
	MovementReturn:     true,
	MovementDamage:     true,
}

// Package procurement implements the vendor-facing document chain:
// purchase intent, purchase order, goods receipt note and vendor payment.
// It mirrors the sales chain with one document shape per table; posting a
// goods receipt is what brings purchased stock into the ledger.
package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
)

// Line is one owned line item on a procurement document.
type Line struct {
	ID          int64           `json:"id"`
	ItemID      *int64          `json:"item_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Document is a procurement lifecycle record.
type Document struct {
	ID      int64             `json:"id"`
	Type    lifecycle.DocType `json:"type"`
	Number  string            `json:"number"`
	Subject string            `json:"subject,omitempty"`

	VendorID int64 `json:"vendor_id"`

	Status          lifecycle.Status         `json:"status"`
	ApprovalStatus  lifecycle.ApprovalStatus `json:"approval_status"`
	ApprovedBy      *int64                   `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time               `json:"approved_at,omitempty"`
	ApprovalRemarks string                   `json:"approval_remarks,omitempty"`

	Currency        string          `json:"currency"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	BalanceAmount   decimal.Decimal `json:"balance_amount"`

	SourceType  *lifecycle.DocType `json:"source_type,omitempty"`
	SourceID    *int64             `json:"source_id,omitempty"`
	ConvertedAt *time.Time         `json:"converted_at,omitempty"`

	// OrderID is set on vendor payments only: the purchase order the
	// payment settles against.
	OrderID *int64 `json:"order_id,omitempty"`

	Lines   []Line `json:"lines,omitempty"`
	Remarks string `json:"remarks,omitempty"`

	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Workflow extracts the lifecycle snapshot the engine operates on.
func (d Document) Workflow() lifecycle.Workflow {
	return lifecycle.Workflow{
		DocType:         d.Type,
		Status:          d.Status,
		ApprovalStatus:  d.ApprovalStatus,
		ApprovedBy:      d.ApprovedBy,
		ApprovedAt:      d.ApprovedAt,
		ApprovalRemarks: d.ApprovalRemarks,
	}
}

// ApplyWorkflow writes an engine result back onto the document.
func (d *Document) ApplyWorkflow(w lifecycle.Workflow) {
	d.Status = w.Status
	d.ApprovalStatus = w.ApprovalStatus
	d.ApprovedBy = w.ApprovedBy
	d.ApprovedAt = w.ApprovedAt
	d.ApprovalRemarks = w.ApprovalRemarks
}

// CanEdit reports whether the document may still be modified.
func (d Document) CanEdit() bool {
	return d.DeletedAt == nil && lifecycle.CanEdit(d.Type, d.Status)
}

var (
	// ErrNotFound indicates a missing or soft-deleted document.
	ErrNotFound = errors.New("procurement: document not found")
	// ErrNotEditable indicates the document left its editable states.
	ErrNotEditable = errors.New("procurement: document can no longer be edited")
	// ErrNotDeletable indicates a terminal or referenced document.
	ErrNotDeletable = errors.New("procurement: document cannot be deleted")
	// ErrWrongType indicates an operation addressed at the wrong type.
	ErrWrongType = errors.New("procurement: operation not valid for this document type")
	// ErrMissingOrder indicates a vendor payment without an order link.
	ErrMissingOrder = errors.New("procurement: vendor payment requires a purchase order reference")
	// ErrOrderNotPayable indicates a payment against an order that never
	// left draft, or was rejected or cancelled.
	ErrOrderNotPayable = errors.New("procurement: purchase order is not payable")
	// ErrOverpayment indicates a payment exceeding the order balance.
	ErrOverpayment = errors.New("procurement: payment exceeds outstanding balance")
)

// procurementTypes is the set of document types this module owns.
var procurementTypes = map[lifecycle.DocType]bool{
	lifecycle.DocPurchaseIntent:   true,
	lifecycle.DocPurchaseOrder:    true,
	lifecycle.DocGoodsReceiptNote: true,
	lifecycle.DocVendorPayment:    true,
}

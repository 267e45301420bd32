// Package sales implements the customer-facing document chain: enquiry,
// quotation, sales order, dispatch, sales bill and receipt. All six share
// one document shape; what differs per type is its transition table and
// which side effects fire on transition.
package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
)

// Line is one owned line item. TotalPrice is always recomputed as
// quantity × unit_price, never trusted from storage or the client.
type Line struct {
	ID          int64           `json:"id"`
	ItemID      *int64          `json:"item_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Document is a sales lifecycle record. One struct covers all six types;
// Type selects the transition table and the valid side effects.
type Document struct {
	ID      int64             `json:"id"`
	Type    lifecycle.DocType `json:"type"`
	Number  string            `json:"number"`
	Subject string            `json:"subject,omitempty"`

	CustomerID int64 `json:"customer_id"`

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

	// SourceType/SourceID link to the predecessor this document was
	// converted from. ConvertedAt is stamped on the source.
	SourceType  *lifecycle.DocType `json:"source_type,omitempty"`
	SourceID    *int64             `json:"source_id,omitempty"`
	ConvertedAt *time.Time         `json:"converted_at,omitempty"`

	// BillID is set on receipts only: the sales bill the payment
	// applies to.
	BillID *int64 `json:"bill_id,omitempty"`

	// ValidUntil is set on quotations only.
	ValidUntil *time.Time `json:"valid_until,omitempty"`

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
	ErrNotFound = errors.New("sales: document not found")
	// ErrNotEditable indicates the document left its editable states.
	ErrNotEditable = errors.New("sales: document can no longer be edited")
	// ErrNotDeletable indicates a terminal or referenced document.
	ErrNotDeletable = errors.New("sales: document cannot be deleted")
	// ErrWrongType indicates an operation addressed at the wrong
	// document type, e.g. applying a receipt to a quotation.
	ErrWrongType = errors.New("sales: operation not valid for this document type")
	// ErrMissingBill indicates a receipt without a bill reference.
	ErrMissingBill = errors.New("sales: receipt requires a bill reference")
	// ErrBillNotOpen indicates a payment against a bill that is not
	// issued or partially paid.
	ErrBillNotOpen = errors.New("sales: bill is not open for payment")
	// ErrOverpayment indicates a receipt exceeding the bill balance.
	ErrOverpayment = errors.New("sales: receipt exceeds outstanding balance")
)

// salesTypes is the set of document types this module owns.
var salesTypes = map[lifecycle.DocType]bool{
	lifecycle.DocEnquiry:    true,
	lifecycle.DocQuotation:  true,
	lifecycle.DocSalesOrder: true,
	lifecycle.DocDispatch:   true,
	lifecycle.DocSalesBill:  true,
	lifecycle.DocReceipt:    true,
}

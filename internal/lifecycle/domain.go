package lifecycle

import (
	"time"
)

// DocType identifies a lifecycle document family.
type DocType string

const (
	DocEnquiry          DocType = "enquiry"
	DocQuotation        DocType = "quotation"
	DocSalesOrder       DocType = "sales_order"
	DocDispatch         DocType = "dispatch"
	DocSalesBill        DocType = "sales_bill"
	DocReceipt          DocType = "receipt"
	DocPurchaseIntent   DocType = "purchase_intent"
	DocPurchaseOrder    DocType = "purchase_order"
	DocGoodsReceiptNote DocType = "goods_receipt_note"
	DocVendorPayment    DocType = "vendor_payment"
)

// Status is a workflow state. The string values are the stored contract
// and must stay lower_snake_case.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusOpen            Status = "open"
	StatusPendingReview   Status = "pending_review"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusSent            Status = "sent"
	StatusAccepted        Status = "accepted"
	StatusExpired         Status = "expired"
	StatusConverted       Status = "converted"
	StatusCancelled       Status = "cancelled"
	StatusLost            Status = "lost"
	StatusInProgress      Status = "in_progress"
	StatusDispatched      Status = "dispatched"
	StatusCompleted       Status = "completed"
	StatusReady           Status = "ready"
	StatusInTransit       Status = "in_transit"
	StatusDelivered       Status = "delivered"
	StatusIssued          Status = "issued"
	StatusPartiallyPaid   Status = "partially_paid"
	StatusPaid            Status = "paid"
	StatusPosted          Status = "posted"
)

// ApprovalStatus is the approval sub-state carried next to Status.
type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
	ApprovalNotRequired ApprovalStatus = "not_required"
)

// Workflow captures the status fields every lifecycle document carries.
// Services embed a snapshot, run it through the engine and persist the
// returned value.
type Workflow struct {
	DocType         DocType
	Status          Status
	ApprovalStatus  ApprovalStatus
	ApprovedBy      *int64
	ApprovedAt      *time.Time
	ApprovalRemarks string
}

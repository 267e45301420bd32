package lifecycle

import (
	"github.com/shopspring/decimal"
)

// ApprovalPolicy decides whether a document requires approval. The decision
// is explicit and testable rather than inferred from field defaults: a type
// either never requires approval, or requires it at or above a configurable
// total-amount threshold.
type ApprovalPolicy struct {
	thresholds map[DocType]decimal.Decimal
}

// exempt types carry workflow but never an approval step.
var exempt = map[DocType]bool{
	DocEnquiry:  true,
	DocDispatch: true,
}

// NewApprovalPolicy builds a policy with per-type thresholds. Types missing
// from the map default to a zero threshold, i.e. approval always required.
func NewApprovalPolicy(thresholds map[DocType]decimal.Decimal) ApprovalPolicy {
	copied := make(map[DocType]decimal.Decimal, len(thresholds))
	for k, v := range thresholds {
		copied[k] = v
	}
	return ApprovalPolicy{thresholds: copied}
}

// Requires reports whether a document of the given type and total needs
// approval before it can reach its gated statuses.
func (p ApprovalPolicy) Requires(doc DocType, total decimal.Decimal) bool {
	if exempt[doc] {
		return false
	}
	threshold, ok := p.thresholds[doc]
	if !ok {
		return true
	}
	return total.GreaterThanOrEqual(threshold)
}

// Initial returns the approval sub-state a newly created document starts in.
func (p ApprovalPolicy) Initial(doc DocType, total decimal.Decimal) ApprovalStatus {
	if p.Requires(doc, total) {
		return ApprovalPending
	}
	return ApprovalNotRequired
}

// NewWorkflow builds the starting workflow snapshot for a fresh document.
func (p ApprovalPolicy) NewWorkflow(doc DocType, total decimal.Decimal) Workflow {
	return Workflow{
		DocType:        doc,
		Status:         StatusDraft,
		ApprovalStatus: p.Initial(doc, total),
	}
}

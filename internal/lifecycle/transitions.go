package lifecycle

// transitions maps each document type to its one-step reachability table.
// A status absent from the inner map is terminal.
var transitions = map[DocType]map[Status][]Status{
	DocEnquiry: {
		StatusDraft: {StatusOpen, StatusCancelled},
		StatusOpen:  {StatusConverted, StatusLost, StatusCancelled},
	},
	DocQuotation: {
		StatusDraft:           {StatusPendingReview, StatusCancelled},
		StatusPendingReview:   {StatusPendingApproval, StatusDraft, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusSent, StatusCancelled},
		StatusSent:            {StatusAccepted, StatusRejected, StatusExpired},
		StatusAccepted:        {StatusConverted},
	},
	DocSalesOrder: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusInProgress, StatusCancelled},
		StatusInProgress:      {StatusDispatched, StatusCancelled},
		StatusDispatched:      {StatusCompleted},
	},
	DocDispatch: {
		StatusDraft:     {StatusReady, StatusCancelled},
		StatusReady:     {StatusInTransit, StatusCancelled},
		StatusInTransit: {StatusDelivered},
		StatusDelivered: {StatusConverted},
	},
	DocSalesBill: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusIssued, StatusCancelled},
		StatusIssued:          {StatusPartiallyPaid, StatusPaid, StatusCancelled},
		StatusPartiallyPaid:   {StatusPaid},
	},
	DocReceipt: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusCompleted},
	},
	DocPurchaseIntent: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusConverted, StatusCancelled},
	},
	DocPurchaseOrder: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusSent, StatusCancelled},
		StatusSent:            {StatusConverted, StatusCancelled},
	},
	DocGoodsReceiptNote: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusPosted},
	},
	DocVendorPayment: {
		StatusDraft:           {StatusPendingApproval, StatusCancelled},
		StatusPendingApproval: {StatusApproved, StatusRejected},
		StatusApproved:        {StatusCompleted},
	},
}

// gated lists, per type, the statuses only reachable once the document's
// approval requirement is satisfied. Transitions to approved/rejected are
// the approval act itself and are never listed here.
var gated = map[DocType][]Status{
	DocQuotation:        {StatusSent},
	DocSalesOrder:       {StatusInProgress},
	DocSalesBill:        {StatusIssued},
	DocReceipt:          {StatusCompleted},
	DocPurchaseIntent:   {StatusConverted},
	DocPurchaseOrder:    {StatusSent},
	DocGoodsReceiptNote: {StatusPosted},
	DocVendorPayment:    {StatusCompleted},
}

// NextStatuses returns the statuses reachable in one step. The result is a
// copy; an empty slice means the status is terminal.
func NextStatuses(doc DocType, from Status) []Status {
	table, ok := transitions[doc]
	if !ok {
		return nil
	}
	return append([]Status(nil), table[from]...)
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(doc DocType, s Status) bool {
	table, ok := transitions[doc]
	if !ok {
		return true
	}
	return len(table[s]) == 0
}

// CanEdit reports whether a document in the given status may be edited.
func CanEdit(doc DocType, s Status) bool {
	return !IsTerminal(doc, s)
}

// CanDelete reports whether a document in the given status may be
// soft-deleted. Referential checks against successors stay with the caller.
func CanDelete(doc DocType, s Status) bool {
	return !IsTerminal(doc, s)
}

func isGated(doc DocType, to Status) bool {
	for _, s := range gated[doc] {
		if s == to {
			return true
		}
	}
	return false
}

func allows(doc DocType, from, to Status) bool {
	for _, s := range transitions[doc][from] {
		if s == to {
			return true
		}
	}
	return false
}

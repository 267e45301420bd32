package lifecycle

// ConversionRule describes one edge of the document conversion graph.
type ConversionRule struct {
	Source DocType
	Target DocType
	// From lists the source statuses conversion may start from.
	From []Status
}

var conversions = map[DocType]ConversionRule{
	DocEnquiry:        {Source: DocEnquiry, Target: DocQuotation, From: []Status{StatusOpen}},
	DocQuotation:      {Source: DocQuotation, Target: DocSalesOrder, From: []Status{StatusAccepted}},
	DocSalesOrder:     {Source: DocSalesOrder, Target: DocDispatch, From: []Status{StatusApproved, StatusInProgress}},
	DocDispatch:       {Source: DocDispatch, Target: DocSalesBill, From: []Status{StatusDelivered}},
	DocPurchaseIntent: {Source: DocPurchaseIntent, Target: DocPurchaseOrder, From: []Status{StatusApproved}},
	DocPurchaseOrder:  {Source: DocPurchaseOrder, Target: DocGoodsReceiptNote, From: []Status{StatusSent}},
}

// RuleFor returns the conversion rule originating at the given type.
func RuleFor(source DocType) (ConversionRule, bool) {
	rule, ok := conversions[source]
	return rule, ok
}

// GuardConversion checks the preconditions for converting a source document.
// hasActiveSuccessor must be true when a non-cancelled successor of the
// rule's target type already references the source.
func GuardConversion(source DocType, sourceStatus Status, hasActiveSuccessor bool) (ConversionRule, error) {
	rule, ok := conversions[source]
	if !ok {
		return ConversionRule{}, ErrNotConvertible
	}
	if sourceStatus == StatusConverted || hasActiveSuccessor {
		return rule, ErrAlreadyConverted
	}
	for _, s := range rule.From {
		if s == sourceStatus {
			return rule, nil
		}
	}
	return rule, ErrInvalidSourceState
}

package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrApprovalRequired occurs when a gated status is requested while
	// approval is still pending.
	ErrApprovalRequired = errors.New("lifecycle: approval required")
	// ErrAlreadyConverted occurs when a source already has an active successor.
	ErrAlreadyConverted = errors.New("lifecycle: already converted")
	// ErrInvalidSourceState occurs when a document is not in a convertible state.
	ErrInvalidSourceState = errors.New("lifecycle: invalid source state")
	// ErrUnknownDocType occurs when no transition table exists for a type.
	ErrUnknownDocType = errors.New("lifecycle: unknown document type")
	// ErrNotConvertible occurs when a type has no conversion rule.
	ErrNotConvertible = errors.New("lifecycle: document type not convertible")
)

// IllegalTransitionError reports a status change outside the transition table.
type IllegalTransitionError struct {
	DocType DocType
	From    Status
	To      Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: illegal transition for %s: %s -> %s", e.DocType, e.From, e.To)
}

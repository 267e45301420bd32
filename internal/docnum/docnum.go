// Package docnum issues human-facing document numbers, unique per document
// type and safe under concurrent creation.
package docnum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
)

// SequencePort hands out the next counter value for a type/year bucket.
// Implementations must be atomic: two concurrent calls never return the
// same value.
type SequencePort interface {
	NextValue(ctx context.Context, docType string, year int) (int64, error)
}

// ErrUnknownPrefix occurs when no prefix is registered for a type.
var ErrUnknownPrefix = errors.New("docnum: unknown document type")

var prefixes = map[lifecycle.DocType]string{
	lifecycle.DocEnquiry:          "ENQ",
	lifecycle.DocQuotation:        "QTN",
	lifecycle.DocSalesOrder:       "SO",
	lifecycle.DocDispatch:         "DSP",
	lifecycle.DocSalesBill:        "INV",
	lifecycle.DocReceipt:          "RCP",
	lifecycle.DocPurchaseIntent:   "PI",
	lifecycle.DocPurchaseOrder:    "PO",
	lifecycle.DocGoodsReceiptNote: "GRN",
	lifecycle.DocVendorPayment:    "VPY",
}

// Service formats sequence values into document numbers.
type Service struct {
	seq SequencePort
}

// NewService constructs the numbering service.
func NewService(seq SequencePort) *Service {
	return &Service{seq: seq}
}

// Next returns the next number for a document type, e.g. QTN-2026-00042.
// Numbers are assigned exactly once at first persist and never reused.
func (s *Service) Next(ctx context.Context, doc lifecycle.DocType, date time.Time) (string, error) {
	prefix, ok := prefixes[doc]
	if !ok {
		return "", ErrUnknownPrefix
	}
	value, err := s.seq.NextValue(ctx, string(doc), date.Year())
	if err != nil {
		return "", fmt.Errorf("docnum: next value for %s: %w", doc, err)
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, date.Year(), value), nil
}

const maxAssignAttempts = 3

// Assign generates a number and invokes persist with it, retrying with a
// fresh number when persist reports a unique violation on the document
// table. Collisions are resolved internally and never surface to callers.
func (s *Service) Assign(ctx context.Context, doc lifecycle.DocType, date time.Time, persist func(number string) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		number, err := s.Next(ctx, doc, date)
		if err != nil {
			return err
		}
		err = persist(number)
		if err == nil {
			return nil
		}
		if !IsUniqueViolation(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("docnum: exhausted retries for %s: %w", doc, lastErr)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/finance"
	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// ============================================================================
// PORTS
// ============================================================================

// RepositoryPort exposes read operations and the transaction boundary.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, filter Filter) ([]Document, int, error)
	ListDueQuotations(ctx context.Context, asOf time.Time) ([]Document, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Create(ctx context.Context, d Document) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Document, error)
	Update(ctx context.Context, d Document) error
	UpdateWorkflow(ctx context.Context, id int64, w lifecycle.Workflow) error
	MarkConverted(ctx context.Context, id int64, at time.Time) error
	SetPayment(ctx context.Context, id int64, paid, balance decimal.Decimal) error
	HasActiveSuccessor(ctx context.Context, source lifecycle.DocType, sourceID int64, target lifecycle.DocType) (bool, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
}

// DocNumPort assigns document numbers.
type DocNumPort interface {
	Next(ctx context.Context, doc lifecycle.DocType, date time.Time) (string, error)
	Assign(ctx context.Context, doc lifecycle.DocType, date time.Time, persist func(number string) error) error
}

// StockPort records stock movements for dispatch deliveries.
type StockPort interface {
	RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.StockMovement, error)
}

// Filter narrows document listings.
type Filter struct {
	Type           lifecycle.DocType
	Status         *lifecycle.Status
	ApprovalStatus *lifecycle.ApprovalStatus
	CustomerID     int64
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

// Service coordinates the sales document chain.
type Service struct {
	repo    RepositoryPort
	numbers DocNumPort
	stock   StockPort
	policy  lifecycle.ApprovalPolicy
	audit   shared.AuditPort
	clock   shared.Clock
}

// NewService builds Service. stock and audit may be nil in tests.
func NewService(repo RepositoryPort, numbers DocNumPort, stock StockPort, policy lifecycle.ApprovalPolicy, audit shared.AuditPort, clock shared.Clock) *Service {
	return &Service{repo: repo, numbers: numbers, stock: stock, policy: policy, audit: audit, clock: clock}
}

// ============================================================================
// CREATE / UPDATE
// ============================================================================

// LineInput is one requested line item.
type LineInput struct {
	ItemID      *int64
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// CreateInput describes a new sales document. BillID and Amount apply to
// receipts only; ValidUntil to quotations only.
type CreateInput struct {
	Type            lifecycle.DocType
	CustomerID      int64
	Subject         string
	Lines           []LineInput
	TaxPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
	ValidUntil      *time.Time
	BillID          *int64
	Amount          decimal.Decimal
	Remarks         string
	ActorID         int64
}

// Create validates, numbers and persists a new document. The initial
// workflow state derives from the approval policy and the type's total.
func (s *Service) Create(ctx context.Context, input CreateInput) (Document, error) {
	if !salesTypes[input.Type] {
		return Document{}, ErrWrongType
	}
	if input.CustomerID <= 0 {
		return Document{}, &finance.ValidationError{Field: "customer_id", Reason: "required"}
	}
	if input.Type == lifecycle.DocReceipt {
		return s.createReceipt(ctx, input)
	}

	lines, totals, err := buildLines(input.Lines, input.TaxPercent, input.DiscountPercent)
	if err != nil {
		return Document{}, err
	}

	now := s.clock.Now()
	doc := Document{
		Type:            input.Type,
		Subject:         input.Subject,
		CustomerID:      input.CustomerID,
		Currency:        finance.DefaultCurrency,
		Subtotal:        totals.Subtotal,
		TaxPercent:      input.TaxPercent,
		TaxAmount:       totals.TaxAmount,
		DiscountPercent: input.DiscountPercent,
		DiscountAmount:  totals.DiscountAmount,
		TotalAmount:     totals.TotalAmount,
		BalanceAmount:   totals.TotalAmount,
		ValidUntil:      input.ValidUntil,
		Lines:           lines,
		Remarks:         input.Remarks,
		CreatedBy:       input.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	doc.ApplyWorkflow(s.policy.NewWorkflow(input.Type, totals.TotalAmount))

	err = s.numbers.Assign(ctx, input.Type, now, func(number string) error {
		doc.Number = number
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.Create(ctx, doc)
			if err != nil {
				return err
			}
			doc.ID = id
			return nil
		})
	})
	if err != nil {
		return Document{}, fmt.Errorf("sales: create %s: %w", input.Type, err)
	}
	s.recordAudit(ctx, "created", doc, input.ActorID, nil)
	return doc, nil
}

func (s *Service) createReceipt(ctx context.Context, input CreateInput) (Document, error) {
	if input.BillID == nil {
		return Document{}, ErrMissingBill
	}
	if input.Amount.Sign() <= 0 {
		return Document{}, &finance.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	bill, err := s.repo.Get(ctx, *input.BillID)
	if err != nil {
		return Document{}, err
	}
	if bill.Type != lifecycle.DocSalesBill {
		return Document{}, ErrWrongType
	}
	if bill.Status != lifecycle.StatusIssued && bill.Status != lifecycle.StatusPartiallyPaid {
		return Document{}, ErrBillNotOpen
	}
	if input.Amount.GreaterThan(bill.BalanceAmount) {
		return Document{}, ErrOverpayment
	}

	now := s.clock.Now()
	amount := input.Amount.Round(2)
	doc := Document{
		Type:          lifecycle.DocReceipt,
		Subject:       input.Subject,
		CustomerID:    bill.CustomerID,
		Currency:      bill.Currency,
		TotalAmount:   amount,
		BalanceAmount: amount,
		BillID:        input.BillID,
		Remarks:       input.Remarks,
		CreatedBy:     input.ActorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	doc.ApplyWorkflow(s.policy.NewWorkflow(lifecycle.DocReceipt, amount))

	err = s.numbers.Assign(ctx, lifecycle.DocReceipt, now, func(number string) error {
		doc.Number = number
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.Create(ctx, doc)
			if err != nil {
				return err
			}
			doc.ID = id
			return nil
		})
	})
	if err != nil {
		return Document{}, fmt.Errorf("sales: create receipt: %w", err)
	}
	s.recordAudit(ctx, "created", doc, input.ActorID, map[string]any{"bill_id": *input.BillID})
	return doc, nil
}

// UpdateInput replaces the mutable parts of a document.
type UpdateInput struct {
	Subject         string
	Lines           []LineInput
	TaxPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
	ValidUntil      *time.Time
	Remarks         string
	ActorID         int64
}

// Update replaces subject, lines and percentages and re-derives all
// totals. Only documents still in an editable state accept updates.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Type == lifecycle.DocReceipt {
		return Document{}, ErrWrongType
	}
	if !doc.CanEdit() {
		return Document{}, ErrNotEditable
	}

	lines, totals, err := buildLines(input.Lines, input.TaxPercent, input.DiscountPercent)
	if err != nil {
		return Document{}, err
	}

	doc.Subject = input.Subject
	doc.Lines = lines
	doc.TaxPercent = input.TaxPercent
	doc.DiscountPercent = input.DiscountPercent
	doc.Subtotal = totals.Subtotal
	doc.TaxAmount = totals.TaxAmount
	doc.DiscountAmount = totals.DiscountAmount
	doc.TotalAmount = totals.TotalAmount
	doc.BalanceAmount = finance.Balance(totals.TotalAmount, doc.AmountPaid)
	doc.ValidUntil = input.ValidUntil
	doc.Remarks = input.Remarks
	doc.UpdatedAt = s.clock.Now()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.CanEdit() {
			return ErrNotEditable
		}
		return tx.Update(ctx, doc)
	})
	if err != nil {
		return Document{}, fmt.Errorf("sales: update %s: %w", doc.Type, err)
	}
	s.recordAudit(ctx, "updated", doc, input.ActorID, nil)
	return doc, nil
}

// ============================================================================
// TRANSITION
// ============================================================================

// Transition runs one lifecycle step through the engine and fires the
// type's side effects: delivering a dispatch posts out movements, and a
// completed receipt settles against its bill.
func (s *Service) Transition(ctx context.Context, id int64, to lifecycle.Status, actorID int64, remarks string) (Document, error) {
	var doc Document
	now := s.clock.Now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := lifecycle.Transition(current.Workflow(), to, actorID, remarks, now)
		if err != nil {
			return err
		}
		current.ApplyWorkflow(next)
		current.UpdatedAt = now
		if err := tx.UpdateWorkflow(ctx, id, next); err != nil {
			return err
		}
		if current.Type == lifecycle.DocReceipt && to == lifecycle.StatusCompleted {
			if err := s.settleReceipt(ctx, tx, current, actorID, now); err != nil {
				return err
			}
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	if doc.Type == lifecycle.DocDispatch && to == lifecycle.StatusDelivered {
		if err := s.postDeliveryMovements(ctx, doc, actorID); err != nil {
			return Document{}, fmt.Errorf("sales: post delivery movements: %w", err)
		}
	}
	s.recordAudit(ctx, "transition", doc, actorID, map[string]any{"to": string(to)})
	return doc, nil
}

// settleReceipt applies a completed receipt to its bill: amount_paid grows,
// balance is re-derived and the bill advances issued→partially_paid→paid.
func (s *Service) settleReceipt(ctx context.Context, tx TxRepository, receipt Document, actorID int64, now time.Time) error {
	if receipt.BillID == nil {
		return ErrMissingBill
	}
	bill, err := tx.GetForUpdate(ctx, *receipt.BillID)
	if err != nil {
		return err
	}
	if bill.Status != lifecycle.StatusIssued && bill.Status != lifecycle.StatusPartiallyPaid {
		return ErrBillNotOpen
	}
	if receipt.TotalAmount.GreaterThan(bill.BalanceAmount) {
		return ErrOverpayment
	}

	paid := bill.AmountPaid.Add(receipt.TotalAmount)
	balance := finance.Balance(bill.TotalAmount, paid)
	if err := tx.SetPayment(ctx, bill.ID, paid, balance); err != nil {
		return err
	}

	target := lifecycle.StatusPartiallyPaid
	if balance.Sign() == 0 {
		target = lifecycle.StatusPaid
	}
	if bill.Status == target {
		return nil
	}
	next, err := lifecycle.Transition(bill.Workflow(), target, actorID, "", now)
	if err != nil {
		return err
	}
	return tx.UpdateWorkflow(ctx, bill.ID, next)
}

// postDeliveryMovements records one pending out movement per stocked line.
// Movements are requested after the delivery commits; their approval is a
// separate warehouse action that actually reduces stock.
func (s *Service) postDeliveryMovements(ctx context.Context, dispatch Document, actorID int64) error {
	if s.stock == nil {
		return nil
	}
	for _, line := range dispatch.Lines {
		if line.ItemID == nil {
			continue
		}
		_, err := s.stock.RecordMovement(ctx, inventory.MovementInput{
			ItemID:   *line.ItemID,
			Type:     inventory.MovementOut,
			Quantity: line.Quantity,
			Owner:    inventory.Owner{Type: string(lifecycle.DocDispatch), ID: dispatch.ID},
			Remarks:  "dispatch " + dispatch.Number,
			ActorID:  actorID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// CONVERSION
// ============================================================================

// Convert derives the successor document from an eligible source inside a
// single transaction: the target is created with copied lines and
// re-derived totals, and the source is marked converted where its table
// has that status.
func (s *Service) Convert(ctx context.Context, id int64, actorID int64) (Document, error) {
	source, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	rule, ok := lifecycle.RuleFor(source.Type)
	if !ok || !salesTypes[rule.Target] {
		return Document{}, lifecycle.ErrNotConvertible
	}

	now := s.clock.Now()
	var target Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		hasSuccessor, err := tx.HasActiveSuccessor(ctx, source.Type, source.ID, rule.Target)
		if err != nil {
			return err
		}
		if _, err := lifecycle.GuardConversion(source.Type, source.Status, hasSuccessor); err != nil {
			return err
		}

		target = buildSuccessor(source, rule.Target, now, actorID)
		target.ApplyWorkflow(s.policy.NewWorkflow(rule.Target, target.TotalAmount))
		number, err := s.numbers.Next(ctx, rule.Target, now)
		if err != nil {
			return err
		}
		target.Number = number
		targetID, err := tx.Create(ctx, target)
		if err != nil {
			return err
		}
		target.ID = targetID

		return s.markSourceConverted(ctx, tx, source, actorID, now)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, "converted", source, actorID, map[string]any{
		"target_type": string(rule.Target),
		"target_id":   target.ID,
	})
	return target, nil
}

// markSourceConverted advances the source to converted when its table has
// that status. Types without it (sales order) keep their status; the
// successor link alone blocks repeat conversion.
func (s *Service) markSourceConverted(ctx context.Context, tx TxRepository, source Document, actorID int64, now time.Time) error {
	allowed := false
	for _, next := range lifecycle.NextStatuses(source.Type, source.Status) {
		if next == lifecycle.StatusConverted {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil
	}
	next, err := lifecycle.Transition(source.Workflow(), lifecycle.StatusConverted, actorID, "", now)
	if err != nil {
		return err
	}
	if err := tx.UpdateWorkflow(ctx, source.ID, next); err != nil {
		return err
	}
	return tx.MarkConverted(ctx, source.ID, now)
}

func buildSuccessor(source Document, target lifecycle.DocType, now time.Time, actorID int64) Document {
	sourceType := source.Type
	sourceID := source.ID
	lines := make([]Line, len(source.Lines))
	copy(lines, source.Lines)
	for i := range lines {
		lines[i].ID = 0
	}
	return Document{
		Type:            target,
		Subject:         source.Subject,
		CustomerID:      source.CustomerID,
		Currency:        source.Currency,
		Subtotal:        source.Subtotal,
		TaxPercent:      source.TaxPercent,
		TaxAmount:       source.TaxAmount,
		DiscountPercent: source.DiscountPercent,
		DiscountAmount:  source.DiscountAmount,
		TotalAmount:     source.TotalAmount,
		BalanceAmount:   source.TotalAmount,
		SourceType:      &sourceType,
		SourceID:        &sourceID,
		Lines:           lines,
		CreatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ============================================================================
// READ / DELETE
// ============================================================================

// Get returns one document.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Document, int, error) {
	return s.repo.List(ctx, filter)
}

// Delete soft-deletes a document. Terminal documents and sources with an
// active successor are kept.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !lifecycle.CanDelete(doc.Type, doc.Status) {
		return ErrNotDeletable
	}
	now := s.clock.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if rule, ok := lifecycle.RuleFor(doc.Type); ok {
			hasSuccessor, err := tx.HasActiveSuccessor(ctx, doc.Type, doc.ID, rule.Target)
			if err != nil {
				return err
			}
			if hasSuccessor {
				return ErrNotDeletable
			}
		}
		return tx.SoftDelete(ctx, id, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "deleted", doc, actorID, nil)
	return nil
}

// ============================================================================
// BACKGROUND SWEEPS
// ============================================================================

// ExpireDueQuotations moves sent quotations past their valid_until date to
// expired. Returns the number of quotations expired.
func (s *Service) ExpireDueQuotations(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDueQuotations(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, doc := range due {
		if _, err := s.Transition(ctx, doc.ID, lifecycle.StatusExpired, 0, "validity elapsed"); err != nil {
			// raced with a concurrent accept/reject; skip
			if errors.Is(err, ErrNotFound) {
				continue
			}
			var illegal *lifecycle.IllegalTransitionError
			if errors.As(err, &illegal) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func buildLines(inputs []LineInput, taxPct, discountPct decimal.Decimal) ([]Line, finance.Totals, error) {
	items := make([]finance.LineItem, len(inputs))
	for i, in := range inputs {
		items[i] = finance.LineItem{Quantity: in.Quantity, UnitPrice: in.UnitPrice}
	}
	totals, err := finance.Recalculate(items, taxPct, discountPct)
	if err != nil {
		return nil, finance.Totals{}, err
	}
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lines[i] = Line{
			ItemID:      in.ItemID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TotalPrice:  totals.LineTotals[i],
		}
	}
	return lines, totals, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, doc Document, actorID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   string(doc.Type),
		EntityID: strconv.FormatInt(doc.ID, 10),
		Meta:     meta,
		At:       s.clock.Now(),
	})
}

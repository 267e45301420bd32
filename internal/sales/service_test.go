package sales

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// ===== IN-MEMORY REPOSITORY =====

type memoryRepo struct {
	mu     sync.Mutex
	docs   map[int64]*Document
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: map[int64]*Document{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryTx)(r))
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*memoryTx)(r).get(id)
}

func (r *memoryRepo) List(_ context.Context, filter Filter) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, d := range r.docs {
		if d.DeletedAt != nil {
			continue
		}
		if filter.Type != "" && d.Type != filter.Type {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != 0 && d.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListDueQuotations(_ context.Context, asOf time.Time) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, d := range r.docs {
		if d.DeletedAt != nil || d.Type != lifecycle.DocQuotation || d.Status != lifecycle.StatusSent {
			continue
		}
		if d.ValidUntil != nil && d.ValidUntil.Before(asOf) {
			out = append(out, *d)
		}
	}
	return out, nil
}

type memoryTx memoryRepo

func (t *memoryTx) get(id int64) (Document, error) {
	d, ok := t.docs[id]
	if !ok || d.DeletedAt != nil {
		return Document{}, ErrNotFound
	}
	return *d, nil
}

func (t *memoryTx) Create(_ context.Context, d Document) (int64, error) {
	t.nextID++
	d.ID = t.nextID
	t.docs[d.ID] = &d
	return d.ID, nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (Document, error) {
	return t.get(id)
}

func (t *memoryTx) Update(_ context.Context, d Document) error {
	stored, ok := t.docs[d.ID]
	if !ok {
		return ErrNotFound
	}
	d.Status = stored.Status
	d.ApprovalStatus = stored.ApprovalStatus
	t.docs[d.ID] = &d
	return nil
}

func (t *memoryTx) UpdateWorkflow(_ context.Context, id int64, w lifecycle.Workflow) error {
	d, ok := t.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.ApplyWorkflow(w)
	return nil
}

func (t *memoryTx) MarkConverted(_ context.Context, id int64, at time.Time) error {
	d, ok := t.docs[id]
	if !ok {
		return ErrNotFound
	}
	converted := at
	d.ConvertedAt = &converted
	return nil
}

func (t *memoryTx) SetPayment(_ context.Context, id int64, paid, balance decimal.Decimal) error {
	d, ok := t.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.AmountPaid = paid
	d.BalanceAmount = balance
	return nil
}

func (t *memoryTx) HasActiveSuccessor(_ context.Context, source lifecycle.DocType, sourceID int64, target lifecycle.DocType) (bool, error) {
	for _, d := range t.docs {
		if d.DeletedAt != nil || d.Type != target {
			continue
		}
		if d.SourceType != nil && *d.SourceType == source && d.SourceID != nil && *d.SourceID == sourceID &&
			d.Status != lifecycle.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) SoftDelete(_ context.Context, id int64, at time.Time) error {
	d, ok := t.docs[id]
	if !ok {
		return ErrNotFound
	}
	deleted := at
	d.DeletedAt = &deleted
	return nil
}

// ===== FAKE PORTS =====

type fakeNumbers struct {
	mu   sync.Mutex
	seqs map[lifecycle.DocType]int
}

func (f *fakeNumbers) Next(_ context.Context, doc lifecycle.DocType, date time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seqs == nil {
		f.seqs = map[lifecycle.DocType]int{}
	}
	f.seqs[doc]++
	return fmt.Sprintf("%s-%d-%05d", doc, date.Year(), f.seqs[doc]), nil
}

func (f *fakeNumbers) Assign(ctx context.Context, doc lifecycle.DocType, date time.Time, persist func(string) error) error {
	number, err := f.Next(ctx, doc, date)
	if err != nil {
		return err
	}
	return persist(number)
}

type fakeStock struct {
	mu       sync.Mutex
	recorded []inventory.MovementInput
}

func (f *fakeStock) RecordMovement(_ context.Context, input inventory.MovementInput) (inventory.StockMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, input)
	return inventory.StockMovement{ID: int64(len(f.recorded)), Status: inventory.MovementPending}, nil
}

// ===== FIXTURES =====

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// openPolicy sets thresholds high enough that nothing requires approval.
func openPolicy() lifecycle.ApprovalPolicy {
	high := dec("1000000")
	return lifecycle.NewApprovalPolicy(map[lifecycle.DocType]decimal.Decimal{
		lifecycle.DocQuotation:  high,
		lifecycle.DocSalesOrder: high,
		lifecycle.DocSalesBill:  high,
		lifecycle.DocReceipt:    high,
	})
}

func newTestService(t *testing.T, policy lifecycle.ApprovalPolicy) (*Service, *memoryRepo, *fakeStock) {
	t.Helper()
	repo := newMemoryRepo()
	stock := &fakeStock{}
	clock := shared.FixedClock{T: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewService(repo, &fakeNumbers{}, stock, policy, nil, clock)
	return svc, repo, stock
}

func seedQuotation(t *testing.T, svc *Service) Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), CreateInput{
		Type:       lifecycle.DocQuotation,
		CustomerID: 7,
		Subject:    "pumps",
		Lines: []LineInput{
			{Description: "pump", Quantity: 2, UnitPrice: dec("500")},
			{Description: "hose", Quantity: 1, UnitPrice: dec("300")},
		},
		TaxPercent:      dec("10"),
		DiscountPercent: dec("5"),
		ActorID:         1,
	})
	require.NoError(t, err)
	return doc
}

func advance(t *testing.T, svc *Service, id int64, path ...lifecycle.Status) Document {
	t.Helper()
	var doc Document
	var err error
	for _, status := range path {
		doc, err = svc.Transition(context.Background(), id, status, 9, "")
		require.NoError(t, err, "transition to %s", status)
	}
	return doc
}

// ===== TESTS =====

func TestCreateQuotationDerivesTotals(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)

	require.Equal(t, lifecycle.StatusDraft, doc.Status)
	require.Equal(t, lifecycle.ApprovalNotRequired, doc.ApprovalStatus)
	require.Equal(t, "INR", doc.Currency)
	require.True(t, doc.Subtotal.Equal(dec("1300")), "subtotal %s", doc.Subtotal)
	require.True(t, doc.TaxAmount.Equal(dec("130.00")))
	require.True(t, doc.DiscountAmount.Equal(dec("65.00")))
	require.True(t, doc.TotalAmount.Equal(dec("1365.00")))
	require.NotEmpty(t, doc.Number)
	require.Len(t, doc.Lines, 2)
	require.True(t, doc.Lines[0].TotalPrice.Equal(dec("1000")))
}

func TestCreateAtThresholdStartsPendingApproval(t *testing.T) {
	policy := lifecycle.NewApprovalPolicy(map[lifecycle.DocType]decimal.Decimal{
		lifecycle.DocQuotation: dec("1000"),
	})
	svc, _, _ := newTestService(t, policy)
	doc := seedQuotation(t, svc)
	require.Equal(t, lifecycle.ApprovalPending, doc.ApprovalStatus)

	// sent is approval-gated: it stays unreachable while approval pends
	advance(t, svc, doc.ID, lifecycle.StatusPendingReview, lifecycle.StatusPendingApproval)
	approved := advance(t, svc, doc.ID, lifecycle.StatusApproved)
	require.Equal(t, lifecycle.ApprovalApproved, approved.ApprovalStatus)
	require.NotNil(t, approved.ApprovedBy)
	require.EqualValues(t, 9, *approved.ApprovedBy)
}

func TestTransitionDraftToConvertedIsIllegal(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)

	_, err := svc.Transition(context.Background(), doc.ID, lifecycle.StatusConverted, 1, "")
	var illegal *lifecycle.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, lifecycle.StatusDraft, illegal.From)
	require.Equal(t, lifecycle.StatusConverted, illegal.To)
}

func TestConvertAcceptedQuotation(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)
	advance(t, svc, doc.ID,
		lifecycle.StatusPendingReview, lifecycle.StatusPendingApproval,
		lifecycle.StatusApproved, lifecycle.StatusSent, lifecycle.StatusAccepted)

	order, err := svc.Convert(context.Background(), doc.ID, 2)
	require.NoError(t, err)
	require.Equal(t, lifecycle.DocSalesOrder, order.Type)
	require.NotNil(t, order.SourceID)
	require.EqualValues(t, doc.ID, *order.SourceID)
	require.True(t, order.TotalAmount.Equal(doc.TotalAmount))
	require.Len(t, order.Lines, 2)

	source, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusConverted, source.Status)
	require.NotNil(t, source.ConvertedAt)

	_, err = svc.Convert(context.Background(), doc.ID, 2)
	require.ErrorIs(t, err, lifecycle.ErrAlreadyConverted)
}

func TestConvertFromWrongState(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)

	_, err := svc.Convert(context.Background(), doc.ID, 2)
	require.ErrorIs(t, err, lifecycle.ErrInvalidSourceState)
}

func TestSalesOrderToDispatchKeepsOrderStatus(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	quotation := seedQuotation(t, svc)
	advance(t, svc, quotation.ID,
		lifecycle.StatusPendingReview, lifecycle.StatusPendingApproval,
		lifecycle.StatusApproved, lifecycle.StatusSent, lifecycle.StatusAccepted)
	order, err := svc.Convert(context.Background(), quotation.ID, 2)
	require.NoError(t, err)
	advance(t, svc, order.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved)

	dispatch, err := svc.Convert(context.Background(), order.ID, 2)
	require.NoError(t, err)
	require.Equal(t, lifecycle.DocDispatch, dispatch.Type)

	// sales orders have no converted status; the successor link guards
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusApproved, got.Status)

	_, err = svc.Convert(context.Background(), order.ID, 2)
	require.ErrorIs(t, err, lifecycle.ErrAlreadyConverted)
}

func TestDeliveryPostsOutMovements(t *testing.T) {
	svc, _, stock := newTestService(t, openPolicy())
	item := int64(42)
	doc, err := svc.Create(context.Background(), CreateInput{
		Type:       lifecycle.DocDispatch,
		CustomerID: 7,
		Lines: []LineInput{
			{ItemID: &item, Description: "pump", Quantity: 3, UnitPrice: dec("500")},
			{Description: "freight", Quantity: 1, UnitPrice: dec("120")},
		},
		ActorID: 1,
	})
	require.NoError(t, err)

	advance(t, svc, doc.ID, lifecycle.StatusReady, lifecycle.StatusInTransit, lifecycle.StatusDelivered)

	require.Len(t, stock.recorded, 1, "only stocked lines post movements")
	move := stock.recorded[0]
	require.EqualValues(t, 42, move.ItemID)
	require.Equal(t, inventory.MovementOut, move.Type)
	require.EqualValues(t, 3, move.Quantity)
	require.Equal(t, string(lifecycle.DocDispatch), move.Owner.Type)
	require.EqualValues(t, doc.ID, move.Owner.ID)
}

func TestReceiptSettlesBill(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	bill, err := svc.Create(context.Background(), CreateInput{
		Type:       lifecycle.DocSalesBill,
		CustomerID: 7,
		Lines:      []LineInput{{Description: "pump", Quantity: 2, UnitPrice: dec("500")}},
		ActorID:    1,
	})
	require.NoError(t, err)
	advance(t, svc, bill.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusIssued)

	billID := bill.ID
	first, err := svc.Create(context.Background(), CreateInput{
		Type: lifecycle.DocReceipt, CustomerID: 7, BillID: &billID, Amount: dec("400"), ActorID: 1,
	})
	require.NoError(t, err)
	advance(t, svc, first.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusCompleted)

	got, err := svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPartiallyPaid, got.Status)
	require.True(t, got.AmountPaid.Equal(dec("400")))
	require.True(t, got.BalanceAmount.Equal(dec("600")))

	second, err := svc.Create(context.Background(), CreateInput{
		Type: lifecycle.DocReceipt, CustomerID: 7, BillID: &billID, Amount: dec("600"), ActorID: 1,
	})
	require.NoError(t, err)
	advance(t, svc, second.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusCompleted)

	got, err = svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPaid, got.Status)
	require.True(t, got.BalanceAmount.IsZero())
}

func TestReceiptValidation(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Type: lifecycle.DocReceipt, CustomerID: 7, Amount: dec("10")})
	require.ErrorIs(t, err, ErrMissingBill)

	bill, err := svc.Create(ctx, CreateInput{
		Type: lifecycle.DocSalesBill, CustomerID: 7,
		Lines: []LineInput{{Description: "pump", Quantity: 1, UnitPrice: dec("100")}}, ActorID: 1,
	})
	require.NoError(t, err)
	billID := bill.ID

	// bill still draft: not open for payment
	_, err = svc.Create(ctx, CreateInput{Type: lifecycle.DocReceipt, CustomerID: 7, BillID: &billID, Amount: dec("10")})
	require.ErrorIs(t, err, ErrBillNotOpen)

	advance(t, svc, bill.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusIssued)
	_, err = svc.Create(ctx, CreateInput{Type: lifecycle.DocReceipt, CustomerID: 7, BillID: &billID, Amount: dec("250")})
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestUpdateBlockedAfterTerminal(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)
	advance(t, svc, doc.ID, lifecycle.StatusCancelled)

	_, err := svc.Update(context.Background(), doc.ID, UpdateInput{
		Lines: []LineInput{{Description: "pump", Quantity: 1, UnitPrice: dec("10")}},
	})
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestDeleteBlockedWithSuccessor(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)
	advance(t, svc, doc.ID,
		lifecycle.StatusPendingReview, lifecycle.StatusPendingApproval,
		lifecycle.StatusApproved, lifecycle.StatusSent, lifecycle.StatusAccepted)
	_, err := svc.Convert(context.Background(), doc.ID, 2)
	require.NoError(t, err)

	// converted is terminal, so delete is refused outright
	require.ErrorIs(t, svc.Delete(context.Background(), doc.ID, 1), ErrNotDeletable)
}

func TestDeleteDraft(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	doc := seedQuotation(t, svc)

	require.NoError(t, svc.Delete(context.Background(), doc.ID, 1))
	_, err := svc.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpireDueQuotations(t *testing.T) {
	svc, _, _ := newTestService(t, openPolicy())
	past := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc, err := svc.Create(context.Background(), CreateInput{
		Type:       lifecycle.DocQuotation,
		CustomerID: 7,
		Lines:      []LineInput{{Description: "pump", Quantity: 1, UnitPrice: dec("100")}},
		ValidUntil: &past,
		ActorID:    1,
	})
	require.NoError(t, err)
	advance(t, svc, doc.ID,
		lifecycle.StatusPendingReview, lifecycle.StatusPendingApproval,
		lifecycle.StatusApproved, lifecycle.StatusSent)

	expired, err := svc.ExpireDueQuotations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	got, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusExpired, got.Status)
}

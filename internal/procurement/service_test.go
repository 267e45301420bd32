package procurement

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
		out = append(out, *d)
	}
	return out, len(out), nil
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

func openPolicy() lifecycle.ApprovalPolicy {
	high := dec("1000000")
	return lifecycle.NewApprovalPolicy(map[lifecycle.DocType]decimal.Decimal{
		lifecycle.DocPurchaseIntent:   high,
		lifecycle.DocPurchaseOrder:    high,
		lifecycle.DocGoodsReceiptNote: high,
		lifecycle.DocVendorPayment:    high,
	})
}

func newTestService(t *testing.T) (*Service, *fakeStock) {
	t.Helper()
	stock := &fakeStock{}
	clock := shared.FixedClock{T: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewService(newMemoryRepo(), &fakeNumbers{}, stock, openPolicy(), nil, clock)
	return svc, stock
}

func seedIntent(t *testing.T, svc *Service) Document {
	t.Helper()
	item := int64(11)
	doc, err := svc.Create(context.Background(), CreateInput{
		Type:     lifecycle.DocPurchaseIntent,
		VendorID: 3,
		Subject:  "bearings restock",
		Lines: []LineInput{
			{ItemID: &item, Description: "bearing", Quantity: 20, UnitPrice: dec("45")},
		},
		TaxPercent: dec("18"),
		ActorID:    1,
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

// toGRN walks a fresh intent through to a posted-ready goods receipt note.
func toGRN(t *testing.T, svc *Service) (intent, order, grn Document) {
	t.Helper()
	intent = seedIntent(t, svc)
	advance(t, svc, intent.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved)
	var err error
	order, err = svc.Convert(context.Background(), intent.ID, 2)
	require.NoError(t, err)
	advance(t, svc, order.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusSent)
	grn, err = svc.Convert(context.Background(), order.ID, 2)
	require.NoError(t, err)
	return intent, order, grn
}

// ===== TESTS =====

func TestCreateIntentDerivesTotals(t *testing.T) {
	svc, _ := newTestService(t)
	doc := seedIntent(t, svc)

	require.Equal(t, lifecycle.StatusDraft, doc.Status)
	require.True(t, doc.Subtotal.Equal(dec("900")))
	require.True(t, doc.TaxAmount.Equal(dec("162.00")))
	require.True(t, doc.TotalAmount.Equal(dec("1062.00")))
	require.NotEmpty(t, doc.Number)
}

func TestIntentToOrderConversion(t *testing.T) {
	svc, _ := newTestService(t)
	intent := seedIntent(t, svc)
	advance(t, svc, intent.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved)

	order, err := svc.Convert(context.Background(), intent.ID, 2)
	require.NoError(t, err)
	require.Equal(t, lifecycle.DocPurchaseOrder, order.Type)
	require.NotNil(t, order.SourceID)
	require.EqualValues(t, intent.ID, *order.SourceID)

	got, err := svc.Get(context.Background(), intent.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusConverted, got.Status)

	_, err = svc.Convert(context.Background(), intent.ID, 2)
	require.ErrorIs(t, err, lifecycle.ErrAlreadyConverted)
}

func TestIntentConversionNeedsApproval(t *testing.T) {
	svc, _ := newTestService(t)
	intent := seedIntent(t, svc)

	_, err := svc.Convert(context.Background(), intent.ID, 2)
	require.ErrorIs(t, err, lifecycle.ErrInvalidSourceState)
}

func TestPostedGRNRequestsInMovements(t *testing.T) {
	svc, stock := newTestService(t)
	_, order, grn := toGRN(t, svc)

	advance(t, svc, grn.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusPosted)

	require.Len(t, stock.recorded, 1)
	move := stock.recorded[0]
	require.Equal(t, inventory.MovementIn, move.Type)
	require.EqualValues(t, 11, move.ItemID)
	require.EqualValues(t, 20, move.Quantity)
	require.Equal(t, string(lifecycle.DocGoodsReceiptNote), move.Owner.Type)
	require.EqualValues(t, grn.ID, move.Owner.ID)

	// conversion already closed the order
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusConverted, got.Status)
}

func TestVendorPaymentSettlesOrder(t *testing.T) {
	svc, _ := newTestService(t)
	_, order, _ := toGRN(t, svc)
	orderID := order.ID

	payment, err := svc.Create(context.Background(), CreateInput{
		Type: lifecycle.DocVendorPayment, VendorID: 3, OrderID: &orderID, Amount: dec("500"), ActorID: 1,
	})
	require.NoError(t, err)
	advance(t, svc, payment.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusCompleted)

	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.Equal(dec("500")))
	require.True(t, got.BalanceAmount.Equal(dec("562.00")))
}

func TestVendorPaymentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Type: lifecycle.DocVendorPayment, VendorID: 3, Amount: dec("10")})
	require.ErrorIs(t, err, ErrMissingOrder)

	intent := seedIntent(t, svc)
	advance(t, svc, intent.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved)
	order, err := svc.Convert(ctx, intent.ID, 2)
	require.NoError(t, err)
	orderID := order.ID

	// order still draft: nothing to pay against
	_, err = svc.Create(ctx, CreateInput{Type: lifecycle.DocVendorPayment, VendorID: 3, OrderID: &orderID, Amount: dec("10")})
	require.ErrorIs(t, err, ErrOrderNotPayable)

	advance(t, svc, order.ID, lifecycle.StatusPendingApproval, lifecycle.StatusApproved, lifecycle.StatusSent)
	_, err = svc.Create(ctx, CreateInput{Type: lifecycle.DocVendorPayment, VendorID: 3, OrderID: &orderID, Amount: dec("5000")})
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestUpdateBlockedAfterTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	intent := seedIntent(t, svc)
	advance(t, svc, intent.ID, lifecycle.StatusCancelled)

	_, err := svc.Update(context.Background(), intent.ID, UpdateInput{
		Lines: []LineInput{{Description: "bearing", Quantity: 1, UnitPrice: dec("45")}},
	})
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestDeleteDraftIntent(t *testing.T) {
	svc, _ := newTestService(t)
	intent := seedIntent(t, svc)

	require.NoError(t, svc.Delete(context.Background(), intent.ID, 1))
	_, err := svc.Get(context.Background(), intent.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

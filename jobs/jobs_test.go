package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/inventory"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

type fakeExpirer struct {
	expired int
	calls   int
}

func (f *fakeExpirer) ExpireDueQuotations(ctx context.Context) (int, error) {
	f.calls++
	return f.expired, nil
}

type fakeLister struct {
	items []inventory.Item
}

func (f *fakeLister) ListItems(ctx context.Context, filter inventory.ItemFilter) ([]inventory.Item, int, error) {
	if filter.Offset >= len(f.items) {
		return nil, len(f.items), nil
	}
	return f.items[filter.Offset:], len(f.items), nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueDefault}, nil
}

func newJobsRouter(enqueuer Enqueuer) chi.Router {
	r := chi.NewRouter()
	NewHandler(nil, enqueuer, slog.Default()).MountRoutes(r)
	return r
}

func TestRunEndpointEnqueuesTask(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run/quotation-expire", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enqueuer.tasks, 1)
	require.Equal(t, TaskQuotationExpire, enqueuer.tasks[0].Type())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run/reorder-scan", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enqueuer.tasks, 2)
	require.Equal(t, TaskInventoryReorderScan, enqueuer.tasks[1].Type())
}

func TestRunEndpointRejectsUnknownTask(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run/gl-close", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, enqueuer.tasks)
}

func TestQuotationExpireJobRunsSweep(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	job := NewQuotationExpireJob(expirer, slog.Default())

	err := job.Handle(context.Background(), NewQuotationExpireTask())
	require.NoError(t, err)
	require.Equal(t, 1, expirer.calls)
}

func TestReorderScanAuditsFlaggedItems(t *testing.T) {
	lister := &fakeLister{items: []inventory.Item{
		{ID: 1, SKU: "WID-01", CurrentStock: 2, ReorderPoint: 8},
		{ID: 2, SKU: "WID-02", CurrentStock: 5, ReorderPoint: 5},
	}}
	audit := &fakeAudit{}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	job := NewReorderScanJob(lister, audit, shared.FixedClock{T: now}, slog.Default())

	err := job.Handle(context.Background(), NewReorderScanTask())
	require.NoError(t, err)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "reorder_flagged", audit.logs[0].Action)
	require.Equal(t, "item", audit.logs[0].Entity)
	require.Equal(t, "1", audit.logs[0].EntityID)
	for _, log := range audit.logs {
		require.False(t, log.At.IsZero(), "audit rows carry the scan time")
		require.Equal(t, now, log.At)
	}
}

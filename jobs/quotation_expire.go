package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// QuotationExpirer is the slice of the sales service the sweep needs.
type QuotationExpirer interface {
	ExpireDueQuotations(ctx context.Context) (int, error)
}

// QuotationExpireJob moves sent quotations past their validity date to
// expired. Each document goes through the regular transition engine, so the
// sweep shows up in the audit trail like any other status change.
type QuotationExpireJob struct {
	sales  QuotationExpirer
	logger *slog.Logger
}

// NewQuotationExpireJob constructs the job.
func NewQuotationExpireJob(sales QuotationExpirer, logger *slog.Logger) *QuotationExpireJob {
	return &QuotationExpireJob{sales: sales, logger: logger}
}

// Handle processes TaskQuotationExpire tasks.
func (j *QuotationExpireJob) Handle(ctx context.Context, t *asynq.Task) error {
	expired, err := j.sales.ExpireDueQuotations(ctx)
	if err != nil {
		j.logger.Error("quotation expiry sweep", slog.Any("error", err))
		return err
	}
	if expired > 0 {
		j.logger.Info("expired quotations", slog.Int("count", expired))
	}
	return nil
}

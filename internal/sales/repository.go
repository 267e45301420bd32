package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
	"github.com/atlas-erp/atlas-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const docColumns = `id, doc_type, number, subject, customer_id,
       status, approval_status, approved_by, approved_at, approval_remarks,
       currency, subtotal, tax_percent, tax_amount, discount_percent, discount_amount,
       total_amount, amount_paid, balance_amount,
       source_type, source_id, converted_at, bill_id, valid_until, remarks,
       created_by, created_at, updated_at, deleted_at`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.Type, &d.Number, &d.Subject, &d.CustomerID,
		&d.Status, &d.ApprovalStatus, &d.ApprovedBy, &d.ApprovedAt, &d.ApprovalRemarks,
		&d.Currency, &d.Subtotal, &d.TaxPercent, &d.TaxAmount, &d.DiscountPercent, &d.DiscountAmount,
		&d.TotalAmount, &d.AmountPaid, &d.BalanceAmount,
		&d.SourceType, &d.SourceID, &d.ConvertedAt, &d.BillID, &d.ValidUntil, &d.Remarks,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

func loadLines(ctx context.Context, q queryer, docID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT id, item_id, description, quantity, unit_price, total_price
		FROM sales_document_lines WHERE document_id = $1 ORDER BY id`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ItemID, &line.Description, &line.Quantity, &line.UnitPrice, &line.TotalPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Get fetches a non-deleted document with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM sales_documents WHERE id = $1 AND deleted_at IS NULL`, docColumns)
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = loadLines(ctx, r.pool, id)
	return doc, err
}

// List returns documents matching the filter plus the unpaged total.
// Lines are not hydrated on listings.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Document, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}
	argPos := 1

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("doc_type = $%d", argPos))
		args = append(args, string(filter.Type))
		argPos++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.ApprovalStatus != nil {
		conditions = append(conditions, fmt.Sprintf("approval_status = $%d", argPos))
		args = append(args, string(*filter.ApprovalStatus))
		argPos++
	}
	if filter.CustomerID != 0 {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, filter.CustomerID)
		argPos++
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, filter.From)
		argPos++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, filter.To)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sales_documents %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM sales_documents %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		docColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// ListDueQuotations returns sent quotations whose validity elapsed.
func (r *Repository) ListDueQuotations(ctx context.Context, asOf time.Time) ([]Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM sales_documents
		WHERE doc_type = $1 AND status = $2 AND valid_until IS NOT NULL AND valid_until < $3
		AND deleted_at IS NULL ORDER BY valid_until`, docColumns)
	rows, err := r.pool.Query(ctx, query, string(lifecycle.DocQuotation), string(lifecycle.StatusSent), asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (t *txRepo) Create(ctx context.Context, d Document) (int64, error) {
	const query = `
		INSERT INTO sales_documents (doc_type, number, subject, customer_id,
			status, approval_status, approved_by, approved_at, approval_remarks,
			currency, subtotal, tax_percent, tax_amount, discount_percent, discount_amount,
			total_amount, amount_paid, balance_amount,
			source_type, source_id, bill_id, valid_until, remarks, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		string(d.Type), d.Number, d.Subject, d.CustomerID,
		string(d.Status), string(d.ApprovalStatus), d.ApprovedBy, d.ApprovedAt, d.ApprovalRemarks,
		d.Currency, d.Subtotal, d.TaxPercent, d.TaxAmount, d.DiscountPercent, d.DiscountAmount,
		d.TotalAmount, d.AmountPaid, d.BalanceAmount,
		d.SourceType, d.SourceID, d.BillID, d.ValidUntil, d.Remarks, d.CreatedBy, d.CreatedAt, d.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := t.insertLines(ctx, id, d.Lines); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *txRepo) insertLines(ctx context.Context, docID int64, lines []Line) error {
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sales_document_lines (document_id, item_id, description, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			docID, line.ItemID, line.Description, line.Quantity, line.UnitPrice, line.TotalPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM sales_documents WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, docColumns)
	doc, err := scanDocument(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = loadLines(ctx, t.tx, id)
	return doc, err
}

func (t *txRepo) Update(ctx context.Context, d Document) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sales_documents SET subject = $1, subtotal = $2, tax_percent = $3, tax_amount = $4,
			discount_percent = $5, discount_amount = $6, total_amount = $7, balance_amount = $8,
			valid_until = $9, remarks = $10, updated_at = $11
		WHERE id = $12`,
		d.Subject, d.Subtotal, d.TaxPercent, d.TaxAmount,
		d.DiscountPercent, d.DiscountAmount, d.TotalAmount, d.BalanceAmount,
		d.ValidUntil, d.Remarks, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sales_document_lines WHERE document_id = $1`, d.ID); err != nil {
		return err
	}
	return t.insertLines(ctx, d.ID, d.Lines)
}

func (t *txRepo) UpdateWorkflow(ctx context.Context, id int64, w lifecycle.Workflow) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sales_documents SET status = $1, approval_status = $2, approved_by = $3,
			approved_at = $4, approval_remarks = $5, updated_at = NOW()
		WHERE id = $6`,
		string(w.Status), string(w.ApprovalStatus), w.ApprovedBy, w.ApprovedAt, w.ApprovalRemarks, id)
	return err
}

func (t *txRepo) MarkConverted(ctx context.Context, id int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_documents SET converted_at = $1, updated_at = $1 WHERE id = $2`, at, id)
	return err
}

func (t *txRepo) SetPayment(ctx context.Context, id int64, paid, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sales_documents SET amount_paid = $1, balance_amount = $2, updated_at = NOW()
		WHERE id = $3`, paid, balance, id)
	return err
}

func (t *txRepo) HasActiveSuccessor(ctx context.Context, source lifecycle.DocType, sourceID int64, target lifecycle.DocType) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sales_documents
			WHERE source_type = $1 AND source_id = $2 AND doc_type = $3
			AND status <> $4 AND deleted_at IS NULL
		)`, string(source), sourceID, string(target), string(lifecycle.StatusCancelled)).Scan(&exists)
	return exists, err
}

func (t *txRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_documents SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	return err
}

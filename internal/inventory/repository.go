package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the stock ledger.
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

const itemColumns = `id, sku, name, unit, current_stock, minimum_stock, maximum_stock, reorder_point,
       created_by, created_at, updated_at, deleted_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID, &item.SKU, &item.Name, &item.Unit, &item.CurrentStock, &item.MinimumStock,
		&item.MaximumStock, &item.ReorderPoint, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
		&item.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetItem fetches a non-deleted item by ID.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM items WHERE id = $1 AND deleted_at IS NULL`, itemColumns)
	return scanItem(r.pool.QueryRow(ctx, query, id))
}

// ListItems returns items matching the filter plus the unpaged total.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}
	argPos := 1

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(sku ILIKE $%d OR name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	if filter.LowStock {
		conditions = append(conditions, "current_stock <= minimum_stock")
	}
	if filter.NeedsReorder {
		conditions = append(conditions, "current_stock <= reorder_point")
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM items %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM items %s ORDER BY sku LIMIT $%d OFFSET $%d`,
		itemColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

const movementColumns = `id, item_id, type, quantity, target_stock, owner_type, owner_id, status,
       remarks, requested_by, approved_by, approved_at, created_at`

func scanMovement(row pgx.Row) (StockMovement, error) {
	var m StockMovement
	err := row.Scan(
		&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.TargetStock, &m.Owner.Type, &m.Owner.ID,
		&m.Status, &m.Remarks, &m.RequestedBy, &m.ApprovedBy, &m.ApprovedAt, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockMovement{}, ErrNotFound
		}
		return StockMovement{}, err
	}
	return m, nil
}

// GetMovement fetches a ledger entry by ID.
func (r *Repository) GetMovement(ctx context.Context, id int64) (StockMovement, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_movements WHERE id = $1`, movementColumns)
	return scanMovement(r.pool.QueryRow(ctx, query, id))
}

// ListMovements returns ledger entries matching the filter.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	argPos := 1

	if filter.ItemID != 0 {
		conditions = append(conditions, fmt.Sprintf("item_id = $%d", argPos))
		args = append(args, filter.ItemID)
		argPos++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.OwnerType != "" {
		conditions = append(conditions, fmt.Sprintf("owner_type = $%d", argPos))
		args = append(args, filter.OwnerType)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM stock_movements %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM stock_movements %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		movementColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

func (t *txRepo) CreateItem(ctx context.Context, item Item) (int64, error) {
	const query = `
		INSERT INTO items (sku, name, unit, current_stock, minimum_stock, maximum_stock, reorder_point, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		item.SKU, item.Name, item.Unit, item.CurrentStock, item.MinimumStock,
		item.MaximumStock, item.ReorderPoint, item.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM items WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, itemColumns)
	return scanItem(t.tx.QueryRow(ctx, query, id))
}

func (t *txRepo) SetItemStock(ctx context.Context, id int64, stock int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE items SET current_stock = $1, updated_at = NOW() WHERE id = $2`, stock, id)
	return err
}

func (t *txRepo) UpdateItemLevels(ctx context.Context, id int64, minimum int64, maximum *int64, reorder int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE items SET minimum_stock = $1, maximum_stock = $2, reorder_point = $3, updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL`, minimum, maximum, reorder, id)
	return err
}

func (t *txRepo) SoftDeleteItem(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE items SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	return err
}

func (t *txRepo) CreateMovement(ctx context.Context, m StockMovement) (int64, error) {
	const query = `
		INSERT INTO stock_movements (item_id, type, quantity, target_stock, owner_type, owner_id, status, remarks, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		m.ItemID, string(m.Type), m.Quantity, m.TargetStock, m.Owner.Type, m.Owner.ID,
		string(m.Status), m.Remarks, m.RequestedBy, m.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetMovementForUpdate(ctx context.Context, id int64) (StockMovement, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_movements WHERE id = $1 FOR UPDATE`, movementColumns)
	return scanMovement(t.tx.QueryRow(ctx, query, id))
}

func (t *txRepo) SetMovementStatus(ctx context.Context, id int64, status MovementStatus, approver int64, remarks string) error {
	// approved_by/approved_at record a decision; a cancellation is not one.
	if status == MovementApproved || status == MovementRejected {
		_, err := t.tx.Exec(ctx, `
			UPDATE stock_movements SET status = $1, approved_by = $2, approved_at = NOW(), remarks = $3
			WHERE id = $4`, string(status), approver, remarks, id)
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE stock_movements SET status = $1, remarks = $2
		WHERE id = $3`, string(status), remarks, id)
	return err
}

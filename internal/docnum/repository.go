package docnum

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements SequencePort on document_sequences. The upsert is a
// single statement, so the increment is atomic without explicit locking.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextValue atomically increments and returns the counter for the bucket.
func (r *Repository) NextValue(ctx context.Context, docType string, year int) (int64, error) {
	const query = `
		INSERT INTO document_sequences (doc_type, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, docType, year).Scan(&value); err != nil {
		return 0, fmt.Errorf("docnum: increment sequence: %w", err)
	}
	return value, nil
}

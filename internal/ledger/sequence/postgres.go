package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
)

// PostgresStore keeps counters in the sequences table. Bound to a pgx.Tx the
// increment commits or rolls back together with the caller's writes, so a
// rolled back voucher does not consume a number.
type PostgresStore struct {
	q db.Querier
}

// NewPostgresStore binds the store to a pool or a transaction.
func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// Next upserts the counter row; the row lock taken by the update serialises
// concurrent callers for the same prefix until their transaction ends.
func (s *PostgresStore) Next(ctx context.Context, prefix string) (int64, error) {
	var value int64
	err := s.q.QueryRow(ctx, `INSERT INTO sequences (prefix, last_value) VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET last_value = sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`, prefix).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Peek reads the counter without incrementing it.
func (s *PostgresStore) Peek(ctx context.Context, prefix string) (int64, error) {
	var value int64
	err := s.q.QueryRow(ctx, `SELECT last_value FROM sequences WHERE prefix=$1`, prefix).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return value, nil
}

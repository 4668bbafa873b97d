package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// LockMode selects the row lock taken by a lookup.
type LockMode int

const (
	LockNone LockMode = iota
	// LockShare blocks concurrent updates of the row, e.g. a parent being validated.
	LockShare
	// LockUpdate takes the row for writing.
	LockUpdate
)

func (m LockMode) clause() string {
	switch m {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	default:
		return ""
	}
}

// Repository abstracts transactional account persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes account operations bound to one transaction.
type TxRepository interface {
	FindByID(ctx context.Context, id int64, lock LockMode) (Account, error)
	FindByNumber(ctx context.Context, number string, lock LockMode) (Account, error)
	ExistsByNumber(ctx context.Context, number string, excludeID int64) (bool, error)
	FindDescendantsByPrefix(ctx context.Context, prefix string) ([]Account, error)
	ListChildren(ctx context.Context, parentID int64) ([]Account, error)
	List(ctx context.Context) ([]Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, a Account) (Account, error)
	// CascadeInactive sets inactive on every account whose number starts with
	// prefix and returns how many rows changed.
	CascadeInactive(ctx context.Context, prefix string, inactive bool, version compliance.Version) (int64, error)
}

// PostgresRepository persists accounts with pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PostgresRepository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx executes fn within a read committed transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return shared.Storage("accounts.tx", errors.New("accounts repository not initialised"))
	}
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const accountColumns = `id, account_number, name, account_type, parent_id, description, inactive, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Number, &a.Name, &a.Type, &a.ParentID, &a.Description, &a.Inactive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) findOne(ctx context.Context, op, where string, arg any, lock LockMode) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where+lock.clause(), arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, shared.Storage(op, err)
	}
	return a, nil
}

func (r *txRepository) FindByID(ctx context.Context, id int64, lock LockMode) (Account, error) {
	return r.findOne(ctx, "accounts.find_by_id", "id=$1", id, lock)
}

func (r *txRepository) FindByNumber(ctx context.Context, number string, lock LockMode) (Account, error) {
	return r.findOne(ctx, "accounts.find_by_number", "account_number=$1", number, lock)
}

func (r *txRepository) ExistsByNumber(ctx context.Context, number string, excludeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number=$1 AND id<>$2)`, number, excludeID).Scan(&exists)
	if err != nil {
		return false, shared.Storage("accounts.exists_by_number", err)
	}
	return exists, nil
}

func (r *txRepository) query(ctx context.Context, op, sql string, args ...any) ([]Account, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.Storage(op, err)
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, shared.Storage(op, err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage(op, err)
	}
	return accounts, nil
}

func (r *txRepository) FindDescendantsByPrefix(ctx context.Context, prefix string) ([]Account, error) {
	return r.query(ctx, "accounts.find_descendants", `SELECT `+accountColumns+` FROM accounts
WHERE account_number LIKE $1 ESCAPE '\' ORDER BY account_number`, likePrefix(prefix))
}

func (r *txRepository) ListChildren(ctx context.Context, parentID int64) ([]Account, error) {
	return r.query(ctx, "accounts.list_children", `SELECT `+accountColumns+` FROM accounts WHERE parent_id=$1 ORDER BY account_number`, parentID)
}

func (r *txRepository) List(ctx context.Context) ([]Account, error) {
	return r.query(ctx, "accounts.list", `SELECT `+accountColumns+` FROM accounts ORDER BY account_number`)
}

func (r *txRepository) Insert(ctx context.Context, a Account) (Account, error) {
	saved, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (account_number, name, account_type, parent_id, description, inactive)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+accountColumns, a.Number, a.Name, a.Type, a.ParentID, a.Description, a.Inactive))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_number") {
			return Account{}, numberNotUnique()
		}
		return Account{}, shared.Storage("accounts.insert", err)
	}
	return saved, nil
}

func (r *txRepository) Update(ctx context.Context, a Account) (Account, error) {
	saved, err := scanAccount(r.tx.QueryRow(ctx, `UPDATE accounts SET account_number=$2, name=$3, account_type=$4, parent_id=$5,
description=$6, inactive=$7, updated_at=NOW() WHERE id=$1 RETURNING `+accountColumns,
		a.ID, a.Number, a.Name, a.Type, a.ParentID, a.Description, a.Inactive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		if db.IsUniqueViolation(err, "uq_accounts_number") {
			return Account{}, numberNotUnique()
		}
		return Account{}, shared.Storage("accounts.update", err)
	}
	return saved, nil
}

func (r *txRepository) CascadeInactive(ctx context.Context, prefix string, inactive bool, version compliance.Version) (int64, error) {
	if err := BulkGuard.Check(version); err != nil {
		return 0, err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET inactive=$2, updated_at=NOW()
WHERE account_number LIKE $1 ESCAPE '\' AND inactive<>$2`, likePrefix(prefix), inactive)
	if err != nil {
		return 0, shared.Storage("accounts.cascade_inactive", err)
	}
	return cmd.RowsAffected(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix builds a LIKE pattern matching every string starting with prefix.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func numberNotUnique() error {
	errs := shared.NewValidationErrors()
	errs.Add("account_number", shared.CodeNumberNotUnique, "account number must be unique")
	return errs
}

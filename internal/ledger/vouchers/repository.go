package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
	"github.com/odyssey-erp/ledgercore/internal/ledger/sequence"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AccountRef is the part of an account a posting needs.
type AccountRef struct {
	ID     int64
	Number string
	Type   accounts.AccountType
}

// ListFilter narrows ListVouchers. Zero fields match everything.
type ListFilter struct {
	TypeID int64
	Status Status
	Limit  int
	Offset int
}

// Repository abstracts transactional voucher persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes voucher operations bound to one transaction.
type TxRepository interface {
	InsertType(ctx context.Context, t VoucherType) (VoucherType, error)
	TypeExistsByPrefix(ctx context.Context, prefix string) (bool, error)
	FindType(ctx context.Context, id int64) (VoucherType, error)
	ListTypes(ctx context.Context) ([]VoucherType, error)
	// Sequences returns a counter store whose increments commit with this transaction.
	Sequences() sequence.Store
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	FindVoucher(ctx context.Context, id int64, forUpdate bool) (Voucher, error)
	ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, error)
	UpdateVoucher(ctx context.Context, v Voucher) (Voucher, error)
	UpdateVoucherStatus(ctx context.Context, id int64, status Status) error
	AccountRefs(ctx context.Context, ids []int64) (map[int64]AccountRef, error)
	ListLedgers(ctx context.Context, voucherID int64) ([]Ledger, error)
	// ReplaceLedgers deletes the voucher's entries and inserts ledgers in their place.
	ReplaceLedgers(ctx context.Context, voucherID int64, ledgers []Ledger, version compliance.Version) ([]Ledger, error)
	// PropagateStatus stamps status on every entry of the voucher.
	PropagateStatus(ctx context.Context, voucherID int64, status Status, version compliance.Version) (int64, error)
}

// PostgresRepository persists vouchers with pgx.
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
		return shared.Storage("vouchers.tx", errors.New("vouchers repository not initialised"))
	}
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const typeColumns = `id, name, prefix, created_at, updated_at`

func scanType(row pgx.Row) (VoucherType, error) {
	var t VoucherType
	err := row.Scan(&t.ID, &t.Name, &t.Prefix, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *txRepository) InsertType(ctx context.Context, t VoucherType) (VoucherType, error) {
	saved, err := scanType(r.tx.QueryRow(ctx, `INSERT INTO voucher_types (name, prefix) VALUES ($1, $2) RETURNING `+typeColumns, t.Name, t.Prefix))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_voucher_types_prefix") {
			return VoucherType{}, prefixNotUnique()
		}
		return VoucherType{}, shared.Storage("vouchers.insert_type", err)
	}
	return saved, nil
}

func (r *txRepository) TypeExistsByPrefix(ctx context.Context, prefix string) (bool, error) {
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM voucher_types WHERE prefix=$1)`, prefix).Scan(&exists); err != nil {
		return false, shared.Storage("vouchers.type_exists", err)
	}
	return exists, nil
}

func (r *txRepository) FindType(ctx context.Context, id int64) (VoucherType, error) {
	t, err := scanType(r.tx.QueryRow(ctx, `SELECT `+typeColumns+` FROM voucher_types WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VoucherType{}, ErrTypeNotFound
		}
		return VoucherType{}, shared.Storage("vouchers.find_type", err)
	}
	return t, nil
}

func (r *txRepository) ListTypes(ctx context.Context) ([]VoucherType, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+typeColumns+` FROM voucher_types ORDER BY prefix`)
	if err != nil {
		return nil, shared.Storage("vouchers.list_types", err)
	}
	defer rows.Close()
	var out []VoucherType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, shared.Storage("vouchers.list_types", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("vouchers.list_types", err)
	}
	return out, nil
}

func (r *txRepository) Sequences() sequence.Store {
	return sequence.NewPostgresStore(r.tx)
}

const voucherSelect = `SELECT v.id, v.voucher_number, v.voucher_date, v.voucher_type_id,
t.name, t.prefix, t.created_at, t.updated_at,
v.description, v.status, v.created_at, v.updated_at
FROM vouchers v JOIN voucher_types t ON t.id = v.voucher_type_id`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var (
		v           Voucher
		description *string
	)
	err := row.Scan(&v.ID, &v.Number, &v.Date, &v.TypeID,
		&v.Type.Name, &v.Type.Prefix, &v.Type.CreatedAt, &v.Type.UpdatedAt,
		&description, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Voucher{}, err
	}
	v.Type.ID = v.TypeID
	if description != nil {
		v.Description = *description
	}
	return v, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO vouchers (voucher_number, voucher_date, voucher_type_id, description, status)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, v.Number, v.Date, v.TypeID, nullable(v.Description), v.Status).Scan(&id)
	if err != nil {
		return Voucher{}, shared.Storage("vouchers.insert", err)
	}
	return r.FindVoucher(ctx, id, false)
}

func (r *txRepository) FindVoucher(ctx context.Context, id int64, forUpdate bool) (Voucher, error) {
	sql := voucherSelect + ` WHERE v.id=$1`
	if forUpdate {
		sql += ` FOR UPDATE OF v`
	}
	v, err := scanVoucher(r.tx.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, shared.Storage("vouchers.find", err)
	}
	return v, nil
}

func (r *txRepository) ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	var (
		where []string
		args  []any
	)
	if filter.TypeID != 0 {
		args = append(args, filter.TypeID)
		where = append(where, fmt.Sprintf("v.voucher_type_id=$%d", len(args)))
	}
	if filter.Status != 0 {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("v.status=$%d", len(args)))
	}
	sql := voucherSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY v.id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.Storage("vouchers.list", err)
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, shared.Storage("vouchers.list", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("vouchers.list", err)
	}
	return out, nil
}

func (r *txRepository) UpdateVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET voucher_date=$2, description=$3, updated_at=NOW() WHERE id=$1`,
		v.ID, v.Date, nullable(v.Description))
	if err != nil {
		return Voucher{}, shared.Storage("vouchers.update", err)
	}
	if cmd.RowsAffected() == 0 {
		return Voucher{}, ErrNotFound
	}
	return r.FindVoucher(ctx, v.ID, false)
}

func (r *txRepository) UpdateVoucherStatus(ctx context.Context, id int64, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return shared.Storage("vouchers.update_status", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) AccountRefs(ctx context.Context, ids []int64) (map[int64]AccountRef, error) {
	refs := make(map[int64]AccountRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT id, account_number, account_type FROM accounts WHERE id = ANY($1) FOR SHARE`, ids)
	if err != nil {
		return nil, shared.Storage("vouchers.account_refs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref AccountRef
		if err := rows.Scan(&ref.ID, &ref.Number, &ref.Type); err != nil {
			return nil, shared.Storage("vouchers.account_refs", err)
		}
		refs[ref.ID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("vouchers.account_refs", err)
	}
	return refs, nil
}

func (r *txRepository) ListLedgers(ctx context.Context, voucherID int64) ([]Ledger, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.voucher_id, l.account_id, a.account_number, a.account_type,
l.amount::text, l.status, l.created_at, l.updated_at
FROM ledgers l JOIN accounts a ON a.id = l.account_id
WHERE l.voucher_id=$1 ORDER BY l.id`, voucherID)
	if err != nil {
		return nil, shared.Storage("vouchers.list_ledgers", err)
	}
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		var (
			l      Ledger
			amount string
		)
		if err := rows.Scan(&l.ID, &l.VoucherID, &l.AccountID, &l.AccountNumber, &l.AccountType,
			&amount, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, shared.Storage("vouchers.list_ledgers", err)
		}
		if l.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, shared.Storage("vouchers.list_ledgers", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("vouchers.list_ledgers", err)
	}
	return out, nil
}

func (r *txRepository) ReplaceLedgers(ctx context.Context, voucherID int64, ledgers []Ledger, version compliance.Version) ([]Ledger, error) {
	if err := BulkGuard.Check(version); err != nil {
		return nil, err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM ledgers WHERE voucher_id=$1`, voucherID); err != nil {
		return nil, shared.Storage("vouchers.delete_ledgers", err)
	}
	if len(ledgers) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, l := range ledgers {
		batch.Queue(`INSERT INTO ledgers (voucher_id, account_id, amount, status)
VALUES ($1, $2, $3::numeric, $4) RETURNING id, created_at, updated_at`, voucherID, l.AccountID, l.Amount.String(), l.Status)
	}
	br := r.tx.SendBatch(ctx, batch)
	saved := make([]Ledger, len(ledgers))
	for i, l := range ledgers {
		l.VoucherID = voucherID
		if err := br.QueryRow().Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			_ = br.Close()
			return nil, shared.Storage("vouchers.insert_ledgers", err)
		}
		saved[i] = l
	}
	if err := br.Close(); err != nil {
		return nil, shared.Storage("vouchers.insert_ledgers", err)
	}
	return saved, nil
}

func (r *txRepository) PropagateStatus(ctx context.Context, voucherID int64, status Status, version compliance.Version) (int64, error) {
	if err := BulkGuard.Check(version); err != nil {
		return 0, err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE ledgers SET status=$2, updated_at=NOW() WHERE voucher_id=$1`, voucherID, status)
	if err != nil {
		return 0, shared.Storage("vouchers.propagate_status", err)
	}
	return cmd.RowsAffected(), nil
}

func prefixNotUnique() shared.ValidationErrors {
	errs := shared.NewValidationErrors()
	errs.Add("prefix", shared.CodePrefixNotUnique, "prefix must be unique")
	return errs
}

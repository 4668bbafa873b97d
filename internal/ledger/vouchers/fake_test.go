package vouchers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
	"github.com/odyssey-erp/ledgercore/internal/ledger/sequence"
)

type memoryState struct {
	nextID   int64
	types    map[int64]VoucherType
	vouchers map[int64]Voucher
	ledgers  map[int64][]Ledger
	counters map[string]int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		nextID:   s.nextID,
		types:    make(map[int64]VoucherType, len(s.types)),
		vouchers: make(map[int64]Voucher, len(s.vouchers)),
		ledgers:  make(map[int64][]Ledger, len(s.ledgers)),
		counters: make(map[string]int64, len(s.counters)),
	}
	for k, v := range s.types {
		out.types[k] = v
	}
	for k, v := range s.vouchers {
		out.vouchers[k] = v
	}
	for k, v := range s.ledgers {
		out.ledgers[k] = append([]Ledger(nil), v...)
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	return out
}

// memoryRepo is an in-memory Repository. Transactions are serialised and
// rolled back to a snapshot on error.
type memoryRepo struct {
	mu       sync.Mutex
	state    memoryState
	accounts map[int64]AccountRef
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{
			types:    map[int64]VoucherType{},
			vouchers: map[int64]Voucher{},
			ledgers:  map[int64][]Ledger{},
			counters: map[string]int64{},
		},
		accounts: map[int64]AccountRef{},
	}
}

func (r *memoryRepo) addAccount(id int64, number string, t accounts.AccountType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id] = AccountRef{ID: id, Number: number, Type: t}
}

func (r *memoryRepo) ledgerCount(voucherID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.ledgers[voucherID])
}

func (r *memoryRepo) setLedgerStatus(voucherID int64, idx int, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.ledgers[voucherID][idx].Status = status
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) id() int64 {
	tx.repo.state.nextID++
	return tx.repo.state.nextID
}

func (tx *memoryTx) InsertType(_ context.Context, t VoucherType) (VoucherType, error) {
	for _, existing := range tx.repo.state.types {
		if existing.Prefix == t.Prefix {
			return VoucherType{}, prefixNotUnique()
		}
	}
	t.ID = tx.id()
	tx.repo.state.types[t.ID] = t
	return t, nil
}

func (tx *memoryTx) TypeExistsByPrefix(_ context.Context, prefix string) (bool, error) {
	for _, t := range tx.repo.state.types {
		if t.Prefix == prefix {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) FindType(_ context.Context, id int64) (VoucherType, error) {
	t, ok := tx.repo.state.types[id]
	if !ok {
		return VoucherType{}, ErrTypeNotFound
	}
	return t, nil
}

func (tx *memoryTx) ListTypes(context.Context) ([]VoucherType, error) {
	out := make([]VoucherType, 0, len(tx.repo.state.types))
	for _, t := range tx.repo.state.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out, nil
}

func (tx *memoryTx) Sequences() sequence.Store {
	return memorySequences{state: &tx.repo.state}
}

func (tx *memoryTx) InsertVoucher(_ context.Context, v Voucher) (Voucher, error) {
	for _, existing := range tx.repo.state.vouchers {
		if existing.Number == v.Number {
			return Voucher{}, errDuplicateNumber
		}
	}
	v.ID = tx.id()
	v.Type = tx.repo.state.types[v.TypeID]
	tx.repo.state.vouchers[v.ID] = v
	return v, nil
}

func (tx *memoryTx) FindVoucher(_ context.Context, id int64, _ bool) (Voucher, error) {
	v, ok := tx.repo.state.vouchers[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return v, nil
}

func (tx *memoryTx) ListVouchers(_ context.Context, filter ListFilter) ([]Voucher, error) {
	var out []Voucher
	for _, v := range tx.repo.state.vouchers {
		if filter.TypeID != 0 && v.TypeID != filter.TypeID {
			continue
		}
		if filter.Status != 0 && v.Status != filter.Status {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) UpdateVoucher(_ context.Context, v Voucher) (Voucher, error) {
	current, ok := tx.repo.state.vouchers[v.ID]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	current.Date = v.Date
	current.Description = v.Description
	tx.repo.state.vouchers[v.ID] = current
	return current, nil
}

func (tx *memoryTx) UpdateVoucherStatus(_ context.Context, id int64, status Status) error {
	v, ok := tx.repo.state.vouchers[id]
	if !ok {
		return ErrNotFound
	}
	v.Status = status
	tx.repo.state.vouchers[id] = v
	return nil
}

func (tx *memoryTx) AccountRefs(_ context.Context, ids []int64) (map[int64]AccountRef, error) {
	out := map[int64]AccountRef{}
	for _, id := range ids {
		if ref, ok := tx.repo.accounts[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

func (tx *memoryTx) ListLedgers(_ context.Context, voucherID int64) ([]Ledger, error) {
	return append([]Ledger(nil), tx.repo.state.ledgers[voucherID]...), nil
}

func (tx *memoryTx) ReplaceLedgers(_ context.Context, voucherID int64, ledgers []Ledger, version compliance.Version) ([]Ledger, error) {
	if err := BulkGuard.Check(version); err != nil {
		return nil, err
	}
	saved := make([]Ledger, len(ledgers))
	for i, l := range ledgers {
		l.ID = tx.id()
		l.VoucherID = voucherID
		saved[i] = l
	}
	tx.repo.state.ledgers[voucherID] = saved
	return append([]Ledger(nil), saved...), nil
}

func (tx *memoryTx) PropagateStatus(_ context.Context, voucherID int64, status Status, version compliance.Version) (int64, error) {
	if err := BulkGuard.Check(version); err != nil {
		return 0, err
	}
	entries := tx.repo.state.ledgers[voucherID]
	for i := range entries {
		entries[i].Status = status
	}
	return int64(len(entries)), nil
}

type memorySequences struct {
	state *memoryState
}

func (s memorySequences) Next(_ context.Context, prefix string) (int64, error) {
	s.state.counters[prefix]++
	return s.state.counters[prefix], nil
}

func (s memorySequences) Peek(_ context.Context, prefix string) (int64, error) {
	return s.state.counters[prefix], nil
}

var errDuplicateNumber = errors.New("duplicate voucher number")

type recorderStub struct {
	mu       sync.Mutex
	failures map[string]int
	created  map[string]int
}

func (r *recorderStub) ValidationFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string]int{}
	}
	r.failures[op]++
}

func (r *recorderStub) VoucherCreated(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created == nil {
		r.created = map[string]int{}
	}
	r.created[strings.ToUpper(prefix)]++
}

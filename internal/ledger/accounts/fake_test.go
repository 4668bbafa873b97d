package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
)

// memoryRepo is an in-memory Repository. Each WithTx holds the lock for the
// whole transaction and restores the snapshot when fn fails.
type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Account
	clock  time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Account{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Account, len(r.rows))
	for id, a := range r.rows {
		snapshot[id] = a
	}
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.rows = snapshot
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryRepo) byNumber(number string) (Account, bool) {
	for _, a := range r.rows {
		if a.Number == number {
			return a, true
		}
	}
	return Account{}, false
}

func (r *memoryRepo) sorted(match func(Account) bool) []Account {
	var out []Account
	for _, a := range r.rows {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// seed stores a directly, bypassing validation.
func (r *memoryRepo) seed(a Account) Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	r.rows[a.ID] = a
	return a
}

func (r *memoryRepo) get(number string) Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, _ := r.byNumber(number)
	return a
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) FindByID(_ context.Context, id int64, _ LockMode) (Account, error) {
	a, ok := tx.repo.rows[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (tx *memoryTx) FindByNumber(_ context.Context, number string, _ LockMode) (Account, error) {
	a, ok := tx.repo.byNumber(number)
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (tx *memoryTx) ExistsByNumber(_ context.Context, number string, excludeID int64) (bool, error) {
	a, ok := tx.repo.byNumber(number)
	return ok && a.ID != excludeID, nil
}

func (tx *memoryTx) FindDescendantsByPrefix(_ context.Context, prefix string) ([]Account, error) {
	return tx.repo.sorted(func(a Account) bool { return strings.HasPrefix(a.Number, prefix) }), nil
}

func (tx *memoryTx) ListChildren(_ context.Context, parentID int64) ([]Account, error) {
	return tx.repo.sorted(func(a Account) bool { return a.ParentID != nil && *a.ParentID == parentID }), nil
}

func (tx *memoryTx) List(context.Context) ([]Account, error) {
	return tx.repo.sorted(func(Account) bool { return true }), nil
}

func (tx *memoryTx) Insert(_ context.Context, a Account) (Account, error) {
	if _, taken := tx.repo.byNumber(a.Number); taken {
		return Account{}, numberNotUnique()
	}
	tx.repo.nextID++
	a.ID = tx.repo.nextID
	a.CreatedAt = tx.repo.clock
	a.UpdatedAt = tx.repo.clock
	tx.repo.rows[a.ID] = a
	return a, nil
}

func (tx *memoryTx) Update(_ context.Context, a Account) (Account, error) {
	current, ok := tx.repo.rows[a.ID]
	if !ok {
		return Account{}, ErrNotFound
	}
	a.CreatedAt = current.CreatedAt
	a.UpdatedAt = tx.repo.clock
	tx.repo.rows[a.ID] = a
	return a, nil
}

func (tx *memoryTx) CascadeInactive(_ context.Context, prefix string, inactive bool, version compliance.Version) (int64, error) {
	if err := BulkGuard.Check(version); err != nil {
		return 0, err
	}
	var n int64
	for id, a := range tx.repo.rows {
		if strings.HasPrefix(a.Number, prefix) && a.Inactive != inactive {
			a.Inactive = inactive
			tx.repo.rows[id] = a
			n++
		}
	}
	return n, nil
}

type recorderStub struct {
	mu       sync.Mutex
	failures map[string]int
	cascaded int64
}

func (r *recorderStub) ValidationFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string]int{}
	}
	r.failures[op]++
}

func (r *recorderStub) AccountsCascaded(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cascaded += n
}

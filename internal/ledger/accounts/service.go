package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AuditPort records account events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder receives account metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	ValidationFailed(operation string)
	AccountsCascaded(n int64)
}

// Service validates and mutates the account tree.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the hierarchy manager. audit and logger may be nil.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a metrics recorder.
func (s *Service) WithMetrics(m Recorder) {
	s.metrics = m
}

type saveResult struct {
	account  Account
	previous *Account
	cascaded int64
}

// Create validates and stores a new account.
func (s *Service) Create(ctx context.Context, in AccountInput) (Account, error) {
	return s.save(ctx, 0, in)
}

// Update validates and stores new values for an existing account. Turning an
// account inactive propagates to every account numbered under it.
func (s *Service) Update(ctx context.Context, id int64, in AccountInput) (Account, error) {
	if id <= 0 {
		return Account{}, ErrInvalidID
	}
	return s.save(ctx, id, in)
}

func (s *Service) save(ctx context.Context, id int64, in AccountInput) (Account, error) {
	var res saveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = s.saveTx(ctx, tx, id, in)
		return err
	})
	op := "account.create"
	if id != 0 {
		op = "account.update"
	}
	if err != nil {
		s.reportFailure(op, err)
		return Account{}, err
	}
	s.record(ctx, in.ActorID, op, res.account, map[string]any{
		"account_number": res.account.Number,
		"inactive":       res.account.Inactive,
	})
	if res.cascaded > 0 {
		s.logger.Info("account inactive cascaded",
			slog.String("account_number", res.account.Number),
			slog.Int64("accounts", res.cascaded))
		s.record(ctx, in.ActorID, "account.cascade", res.account, map[string]any{
			"account_number": res.account.Number,
			"inactive":       res.account.Inactive,
			"affected":       res.cascaded,
		})
		if s.metrics != nil {
			s.metrics.AccountsCascaded(res.cascaded)
		}
	}
	return res.account, nil
}

// saveTx runs validation and persistence inside tx. The cascade decision is
// an explicit diff between the locked previous row and the saved row.
func (s *Service) saveTx(ctx context.Context, tx TxRepository, id int64, in AccountInput) (saveResult, error) {
	var previous *Account
	if id != 0 {
		current, err := tx.FindByID(ctx, id, LockUpdate)
		if err != nil {
			return saveResult{}, err
		}
		previous = &current
	}

	next := in.toAccount(id)
	errs := shared.NewValidationErrors()

	parent, err := s.resolveParent(ctx, tx, in)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return saveResult{}, err
		}
		errs.Add("parent", shared.CodeParentNotFound, "parent account does not exist")
	}
	if parent != nil {
		next.ParentID = &parent.ID
	}

	taken := false
	if next.Number != "" {
		if taken, err = tx.ExistsByNumber(ctx, next.Number, id); err != nil {
			return saveResult{}, err
		}
	}

	errs.Merge(Validate(Candidate{Account: next, Previous: previous, Parent: parent, NumberTaken: taken}))

	if parent != nil && previous != nil {
		cyclic, err := s.createsCycle(ctx, tx, previous.ID, parent)
		if err != nil {
			return saveResult{}, err
		}
		if cyclic {
			errs.Add("parent", shared.CodeParentCycle, "account can't be placed under itself or its sub accounts")
		}
	}
	if err := errs.Err(); err != nil {
		return saveResult{}, err
	}

	var saved Account
	if previous == nil {
		saved, err = tx.Insert(ctx, next)
	} else {
		saved, err = tx.Update(ctx, next)
	}
	if err != nil {
		return saveResult{}, err
	}

	res := saveResult{account: saved, previous: previous}
	if inactivated(previous, saved) {
		affected, err := tx.CascadeInactive(ctx, saved.Number, true, BulkVersion)
		if err != nil {
			return saveResult{}, err
		}
		res.cascaded = affected
	}
	return res, nil
}

// resolveParent loads the parent with a share lock so it can't be
// deactivated until this transaction ends.
func (s *Service) resolveParent(ctx context.Context, tx TxRepository, in AccountInput) (*Account, error) {
	if !in.hasParent() {
		return nil, nil
	}
	var (
		parent Account
		err    error
	)
	if in.ParentID != nil && *in.ParentID != 0 {
		parent, err = tx.FindByID(ctx, *in.ParentID, LockShare)
	} else {
		parent, err = tx.FindByNumber(ctx, strings.TrimSpace(in.ParentNumber), LockShare)
	}
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

// createsCycle walks the parent chain from parent and reports whether it
// reaches accountID.
func (s *Service) createsCycle(ctx context.Context, tx TxRepository, accountID int64, parent *Account) (bool, error) {
	visited := map[int64]bool{}
	current := *parent
	for {
		if current.ID == accountID {
			return true, nil
		}
		if current.ParentID == nil || visited[current.ID] {
			return false, nil
		}
		visited[current.ID] = true
		next, err := tx.FindByID(ctx, *current.ParentID, LockNone)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		current = next
	}
}

// Import creates many accounts in one transaction, parents before children.
// Either every account is stored or none is.
func (s *Service) Import(ctx context.Context, inputs []AccountInput, version compliance.Version) ([]Account, error) {
	if err := BulkGuard.Check(version); err != nil {
		return nil, err
	}
	ordered := make([]int, len(inputs))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return depth(inputs[ordered[a]].Number) < depth(inputs[ordered[b]].Number)
	})

	created := make([]Account, len(inputs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, idx := range ordered {
			res, err := s.saveTx(ctx, tx, 0, inputs[idx])
			if err != nil {
				if verrs, ok := shared.AsValidation(err); ok {
					return prefixFields(verrs, idx)
				}
				return err
			}
			created[idx] = res.account
		}
		return nil
	})
	if err != nil {
		s.reportFailure("account.import", err)
		return nil, err
	}
	s.logger.Info("accounts imported", slog.Int("accounts", len(created)))
	return created, nil
}

func depth(number string) int {
	return strings.Count(strings.TrimSpace(number), ".")
}

func prefixFields(errs shared.ValidationErrors, idx int) shared.ValidationErrors {
	out := shared.NewValidationErrors()
	for field, list := range errs {
		out[fmt.Sprintf("accounts[%d].%s", idx, field)] = list
	}
	return out
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		a, err = tx.FindByID(ctx, id, LockNone)
		return err
	})
	return a, err
}

// GetByNumber returns the account numbered number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Account, error) {
	var a Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		a, err = tx.FindByNumber(ctx, number, LockNone)
		return err
	})
	return a, err
}

// List returns every account ordered by number.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.List(ctx)
		return err
	})
	return accounts, err
}

// Children returns the direct sub accounts of id.
func (s *Service) Children(ctx context.Context, id int64) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListChildren(ctx, id)
		return err
	})
	return accounts, err
}

// Descendants returns every other account whose number starts with number,
// the same set an inactive cascade reaches.
func (s *Service) Descendants(ctx context.Context, number string) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.FindDescendantsByPrefix(ctx, number)
		if err != nil {
			return err
		}
		for _, a := range found {
			if a.Number != number {
				accounts = append(accounts, a)
			}
		}
		return nil
	})
	return accounts, err
}

// Verify scans the whole tree for invariant violations.
func (s *Service) Verify(ctx context.Context) ([]Violation, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return verifyTree(all), nil
}

func verifyTree(all []Account) []Violation {
	byID := make(map[int64]Account, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}
	var out []Violation
	for _, a := range all {
		if a.ParentID == nil {
			continue
		}
		parent, ok := byID[*a.ParentID]
		if !ok {
			out = append(out, Violation{AccountID: a.ID, Number: a.Number, Kind: ViolationParentMissing,
				Detail: fmt.Sprintf("parent %d not found", *a.ParentID)})
			continue
		}
		if !strings.HasPrefix(a.Number, parent.Number+".") {
			out = append(out, Violation{AccountID: a.ID, Number: a.Number, Kind: ViolationNumberPrefix,
				Detail: fmt.Sprintf("expected prefix %s.", parent.Number)})
		}
		if a.Type != parent.Type {
			out = append(out, Violation{AccountID: a.ID, Number: a.Number, Kind: ViolationTypeMismatch,
				Detail: fmt.Sprintf("type %s differs from parent type %s", a.Type, parent.Type)})
		}
		if !a.Inactive && parent.Inactive {
			out = append(out, Violation{AccountID: a.ID, Number: a.Number, Kind: ViolationActiveUnderInactive,
				Detail: fmt.Sprintf("parent %s is inactive", parent.Number)})
		}
	}
	return out
}

func (s *Service) reportFailure(op string, err error) {
	if _, ok := shared.AsValidation(err); ok {
		s.logger.Debug("account validation failed", slog.String("op", op), slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.ValidationFailed(op)
		}
		return
	}
	if errors.Is(err, compliance.ErrCompliance) {
		s.logger.Error("account bulk compliance failure", slog.String("op", op), slog.Any("error", err))
		return
	}
	if shared.IsStorage(err) {
		s.logger.Error("account storage failure", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, a Account, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", a.ID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

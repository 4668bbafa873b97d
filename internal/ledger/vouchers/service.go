package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
	"github.com/odyssey-erp/ledgercore/internal/ledger/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AuditPort records voucher events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder receives voucher metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	ValidationFailed(operation string)
	VoucherCreated(prefix string)
}

// Service creates vouchers and keeps their ledger entries balanced.
type Service struct {
	repo    Repository
	numbers sequence.Store
	audit   AuditPort
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the balancer. Voucher numbers come from the
// transaction's own sequence store unless WithSequenceStore is used.
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

// WithSequenceStore numbers vouchers from store instead of the in-transaction
// counter. A store outside the transaction may skip values on rollback.
func (s *Service) WithSequenceStore(store sequence.Store) {
	s.numbers = store
}

// CreateVoucherType validates and stores a voucher type.
func (s *Service) CreateVoucherType(ctx context.Context, in VoucherTypeInput) (VoucherType, error) {
	in = normalizeType(in)
	errs, err := validateType(in)
	if err != nil {
		return VoucherType{}, err
	}
	if err := errs.Err(); err != nil {
		s.reportFailure("voucher_type.create", err)
		return VoucherType{}, err
	}
	var saved VoucherType
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.TypeExistsByPrefix(ctx, in.Prefix)
		if err != nil {
			return err
		}
		if taken {
			return prefixNotUnique()
		}
		saved, err = tx.InsertType(ctx, VoucherType{Name: in.Name, Prefix: in.Prefix})
		return err
	})
	if err != nil {
		s.reportFailure("voucher_type.create", err)
		return VoucherType{}, err
	}
	s.record(ctx, in.ActorID, "voucher_type.create", "voucher_type", saved.ID, map[string]any{"prefix": saved.Prefix})
	return saved, nil
}

// ListVoucherTypes returns every voucher type ordered by prefix.
func (s *Service) ListVoucherTypes(ctx context.Context) ([]VoucherType, error) {
	var out []VoucherType
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListTypes(ctx)
		return err
	})
	return out, err
}

// CreateVoucher numbers and stores a pending voucher. The number is taken
// exactly once, in the same transaction as the insert.
func (s *Service) CreateVoucher(ctx context.Context, in VoucherInput) (Voucher, error) {
	errs, err := validateVoucher(in)
	if err != nil {
		return Voucher{}, err
	}
	if err := errs.Err(); err != nil {
		s.reportFailure("voucher.create", err)
		return Voucher{}, err
	}

	var saved Voucher
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		vt, err := tx.FindType(ctx, in.TypeID)
		if err != nil {
			return err
		}
		store := s.numbers
		if store == nil {
			store = tx.Sequences()
		}
		number, err := sequence.NewGenerator(store).GenerateNumber(ctx, vt.Prefix)
		if err != nil {
			return err
		}
		saved, err = tx.InsertVoucher(ctx, Voucher{
			Number:      number,
			Date:        in.Date,
			TypeID:      vt.ID,
			Description: in.Description,
			Status:      StatusPending,
		})
		return err
	})
	if err != nil {
		s.reportFailure("voucher.create", err)
		return Voucher{}, err
	}
	s.logger.Info("voucher created", slog.String("voucher_number", saved.Number), slog.Int64("voucher_id", saved.ID))
	if s.metrics != nil {
		s.metrics.VoucherCreated(saved.Type.Prefix)
	}
	s.record(ctx, in.ActorID, "voucher.create", "voucher", saved.ID, map[string]any{"voucher_number": saved.Number})
	return saved, nil
}

// GetVoucher returns the voucher with its ledger entries.
func (s *Service) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	var v Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if v, err = tx.FindVoucher(ctx, id, false); err != nil {
			return err
		}
		v.Entries, err = tx.ListLedgers(ctx, id)
		return err
	})
	return v, err
}

// ListVouchers returns vouchers matching filter without their entries.
func (s *Service) ListVouchers(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	var out []Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListVouchers(ctx, filter)
		return err
	})
	return out, err
}

// UpdateVoucher edits the date and description. A status in the update is
// applied and propagated like UpdateStatus. The number never changes.
func (s *Service) UpdateVoucher(ctx context.Context, id int64, in VoucherUpdate) (Voucher, error) {
	if id <= 0 {
		return Voucher{}, ErrInvalidID
	}
	errs := shared.NewValidationErrors()
	if in.Date != nil && in.Date.IsZero() {
		errs.Add("voucher_date", shared.CodeDateEmpty, "voucher date can not be empty")
	}
	if in.Status != nil && !in.Status.Valid() {
		errs.Add("status", shared.CodeStatusInvalid, "status must be pending, approved or rejected")
	}
	if err := errs.Err(); err != nil {
		s.reportFailure("voucher.update", err)
		return Voucher{}, err
	}

	var (
		saved      Voucher
		propagated int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.FindVoucher(ctx, id, true)
		if err != nil {
			return err
		}
		if in.Date != nil {
			v.Date = *in.Date
		}
		if in.Description != nil {
			v.Description = *in.Description
		}
		if saved, err = tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		if in.Status != nil {
			if propagated, err = applyStatus(ctx, tx, id, *in.Status); err != nil {
				return err
			}
			saved.Status = *in.Status
		}
		saved.Entries, err = tx.ListLedgers(ctx, id)
		return err
	})
	if err != nil {
		s.reportFailure("voucher.update", err)
		return Voucher{}, err
	}
	meta := map[string]any{"voucher_number": saved.Number}
	if in.Status != nil {
		meta["status"] = saved.Status.String()
		meta["entries"] = propagated
	}
	s.record(ctx, in.ActorID, "voucher.update", "voucher", saved.ID, meta)
	return saved, nil
}

// UpdateStatus stores status on the voucher and every one of its entries
// in one transaction.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) (Voucher, error) {
	return s.UpdateVoucher(ctx, id, VoucherUpdate{Status: &status, ActorID: actorID})
}

func applyStatus(ctx context.Context, tx TxRepository, id int64, status Status) (int64, error) {
	if err := tx.UpdateVoucherStatus(ctx, id, status); err != nil {
		return 0, err
	}
	return tx.PropagateStatus(ctx, id, status, BulkVersion)
}

// SetLedgers replaces the entries of a voucher. Entries take the voucher's
// current status. The set is stored only when its debit and credit totals
// are equal; otherwise nothing changes.
func (s *Service) SetLedgers(ctx context.Context, voucherID int64, entries []EntryInput, actorID int64) ([]Ledger, error) {
	if voucherID <= 0 {
		return nil, ErrInvalidID
	}
	errs, err := validateEntries(entries)
	if err != nil {
		return nil, err
	}

	var saved []Ledger
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.FindVoucher(ctx, voucherID, true)
		if err != nil {
			return err
		}
		refs, err := tx.AccountRefs(ctx, accountIDs(entries))
		if err != nil {
			return err
		}

		ledgers := make([]Ledger, 0, len(entries))
		for i, e := range entries {
			if e.AccountID == 0 {
				continue
			}
			ref, ok := refs[e.AccountID]
			if !ok {
				errs.Add(fmt.Sprintf("entries[%d].account", i), shared.CodeAccountNotFound,
					fmt.Sprintf("account %d does not exist", e.AccountID))
				continue
			}
			ledgers = append(ledgers, Ledger{
				VoucherID:     v.ID,
				AccountID:     ref.ID,
				AccountNumber: ref.Number,
				AccountType:   ref.Type,
				Amount:        e.Amount,
				Status:        v.Status,
			})
		}
		// Entry errors are reported without the balance check.
		if err := errs.Err(); err != nil {
			return err
		}
		if debit, credit := Totals(ledgers); !debit.Equal(credit) {
			return debitCreditMismatch(debit, credit)
		}
		saved, err = tx.ReplaceLedgers(ctx, v.ID, ledgers, BulkVersion)
		return err
	})
	if err != nil {
		s.reportFailure("voucher.set_ledgers", err)
		return nil, err
	}
	debit, _ := Totals(saved)
	s.record(ctx, actorID, "voucher.set_ledgers", "voucher", voucherID, map[string]any{
		"entries": len(saved),
		"amount":  debit.String(),
	})
	return saved, nil
}

func accountIDs(entries []EntryInput) []int64 {
	seen := make(map[int64]bool, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.AccountID != 0 && !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	return ids
}

// Verify rechecks every voucher: entries must balance and carry the voucher's
// status. Vouchers are checked concurrently by up to concurrency workers.
func (s *Service) Verify(ctx context.Context, concurrency int) ([]Violation, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	all, err := s.ListVouchers(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []Violation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, v := range all {
		g.Go(func() error {
			var entries []Ledger
			err := s.repo.WithTx(gctx, func(ctx context.Context, tx TxRepository) error {
				var err error
				entries, err = tx.ListLedgers(ctx, v.ID)
				return err
			})
			if err != nil {
				return err
			}
			found := verifyVoucher(v, entries)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VoucherID != out[j].VoucherID {
			return out[i].VoucherID < out[j].VoucherID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func verifyVoucher(v Voucher, entries []Ledger) []Violation {
	var out []Violation
	if debit, credit := Totals(entries); !debit.Equal(credit) {
		out = append(out, Violation{VoucherID: v.ID, Number: v.Number, Kind: ViolationUnbalanced,
			Detail: fmt.Sprintf("debit %s credit %s", debit, credit)})
	}
	drift := 0
	for _, e := range entries {
		if e.Status != v.Status {
			drift++
		}
	}
	if drift > 0 {
		out = append(out, Violation{VoucherID: v.ID, Number: v.Number, Kind: ViolationStatusDrift,
			Detail: fmt.Sprintf("%d entries differ from status %s", drift, v.Status)})
	}
	return out
}

func (s *Service) reportFailure(op string, err error) {
	if _, ok := shared.AsValidation(err); ok {
		s.logger.Debug("voucher validation failed", slog.String("op", op), slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.ValidationFailed(op)
		}
		return
	}
	if errors.Is(err, compliance.ErrCompliance) {
		s.logger.Error("voucher bulk compliance failure", slog.String("op", op), slog.Any("error", err))
		return
	}
	if shared.IsStorage(err) {
		s.logger.Error("voucher storage failure", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

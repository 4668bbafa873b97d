package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
	"github.com/odyssey-erp/ledgercore/internal/ledger/vouchers"
)

// AccountVerifier checks the account tree.
type AccountVerifier interface {
	Verify(ctx context.Context) ([]accounts.Violation, error)
}

// VoucherVerifier checks vouchers and their entries.
type VoucherVerifier interface {
	Verify(ctx context.Context, concurrency int) ([]vouchers.Violation, error)
}

// ViolationGauge publishes the outcome of the latest run.
type ViolationGauge interface {
	SetIntegrityViolations(counts map[string]int)
}

// IntegrityReport is the outcome of one run.
type IntegrityReport struct {
	RunID    string
	Accounts []accounts.Violation
	Vouchers []vouchers.Violation
	Counts   map[string]int
	Duration time.Duration
}

// Total returns the number of violations found.
func (r IntegrityReport) Total() int {
	return len(r.Accounts) + len(r.Vouchers)
}

// IntegrityJob verifies ledger invariants on a schedule. Violations are
// reported and never retried; only storage failures fail the task.
type IntegrityJob struct {
	Accounts    AccountVerifier
	Vouchers    VoucherVerifier
	Gauge       ViolationGauge
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewIntegrityJob wires the verifiers. gauge, logger and metrics may be nil.
func NewIntegrityJob(acc AccountVerifier, vch VoucherVerifier, gauge ViolationGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Accounts: acc, Vouchers: vch, Gauge: gauge, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run executes one integrity check.
func (j *IntegrityJob) Run(ctx context.Context, payload IntegrityPayload) (IntegrityReport, error) {
	if j == nil || j.Accounts == nil || j.Vouchers == nil {
		return IntegrityReport{}, errors.New("integrity: verifiers not configured")
	}
	if payload.RunID == "" {
		payload.RunID = newRunID()
	}
	concurrency := payload.Concurrency
	if concurrency <= 0 {
		concurrency = j.Concurrency
	}

	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	start := time.Now()
	logger := j.logger().With(slog.String("run_id", payload.RunID), slog.Int("concurrency", concurrency))
	logger.Info("starting ledger integrity check")

	report := IntegrityReport{RunID: payload.RunID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report.Accounts, err = j.Accounts.Verify(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		report.Vouchers, err = j.Vouchers.Verify(gctx, concurrency)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("ledger integrity check failed", slog.Any("error", err))
		return IntegrityReport{}, tracker.End(err)
	}

	report.Counts = countKinds(report)
	report.Duration = time.Since(start)
	for _, v := range report.Accounts {
		logger.Warn("integrity violation",
			slog.String("kind", string(v.Kind)),
			slog.String("account_number", v.Number),
			slog.String("detail", v.Detail))
	}
	for _, v := range report.Vouchers {
		logger.Warn("integrity violation",
			slog.String("kind", string(v.Kind)),
			slog.String("voucher_number", v.Number),
			slog.String("detail", v.Detail))
	}
	for kind, n := range report.Counts {
		j.Metrics.AddViolations(kind, n)
	}
	if j.Gauge != nil {
		j.Gauge.SetIntegrityViolations(report.Counts)
	}
	logger.Info("completed ledger integrity check",
		slog.Int("violations", report.Total()),
		slog.Duration("duration", report.Duration))
	return report, tracker.End(nil)
}

func countKinds(r IntegrityReport) map[string]int {
	counts := map[string]int{}
	for _, v := range r.Accounts {
		counts[string(v.Kind)]++
	}
	for _, v := range r.Vouchers {
		counts[string(v.Kind)]++
	}
	return counts
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
	"github.com/odyssey-erp/ledgercore/internal/ledger/sequence"
	"github.com/odyssey-erp/ledgercore/internal/ledger/vouchers"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Ledger bundles the services that make up the ledger core.
type Ledger struct {
	Accounts *accounts.Service
	Vouchers *vouchers.Service
	Audit    *shared.AuditLogger
}

// LedgerDeps collects the handles NewLedger wires together. Redis is only
// required when the sequence backend is redis.
type LedgerDeps struct {
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// NewLedger constructs the account and voucher services over Postgres.
func NewLedger(deps LedgerDeps) *Ledger {
	audit := shared.NewAuditLogger(deps.Pool)

	accountSvc := accounts.NewService(accounts.NewRepository(deps.Pool), audit, deps.Logger)
	voucherSvc := vouchers.NewService(vouchers.NewRepository(deps.Pool), audit, deps.Logger)
	if deps.Metrics != nil {
		accountSvc.WithMetrics(deps.Metrics)
		voucherSvc.WithMetrics(deps.Metrics)
	}
	if deps.Config != nil && deps.Config.SequenceBackend == SequenceRedis && deps.Redis != nil {
		voucherSvc.WithSequenceStore(sequence.NewRedisStore(deps.Redis))
	}
	return &Ledger{Accounts: accountSvc, Vouchers: voucherSvc, Audit: audit}
}

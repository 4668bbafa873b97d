package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/app"
	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
	"github.com/odyssey-erp/ledgercore/internal/ledger/vouchers"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

type seedAccount struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Parent string `json:"parent,omitempty"`
}

var defaultChart = []seedAccount{
	{Number: "1", Name: "Assets", Type: "asset"},
	{Number: "1.1", Name: "Cash and Bank", Type: "asset", Parent: "1"},
	{Number: "1.1.1", Name: "Petty Cash", Type: "asset", Parent: "1.1"},
	{Number: "1.1.2", Name: "Operating Account", Type: "asset", Parent: "1.1"},
	{Number: "1.2", Name: "Receivables", Type: "asset", Parent: "1"},
	{Number: "2", Name: "Liabilities", Type: "liability"},
	{Number: "2.1", Name: "Payables", Type: "liability", Parent: "2"},
	{Number: "3", Name: "Equity", Type: "equity"},
	{Number: "3.1", Name: "Share Capital", Type: "equity", Parent: "3"},
	{Number: "4", Name: "Revenue", Type: "revenue"},
	{Number: "4.1", Name: "Sales", Type: "revenue", Parent: "4"},
	{Number: "5", Name: "Expenses", Type: "expense"},
	{Number: "5.1", Name: "Rent", Type: "expense", Parent: "5"},
}

var defaultTypes = []vouchers.VoucherTypeInput{
	{Name: "Sales Voucher", Prefix: "SV"},
	{Name: "Journal Voucher", Prefix: "JV"},
	{Name: "Payment Voucher", Prefix: "PV"},
}

func main() {
	chartPath := flag.String("chart", "", "JSON file with the chart of accounts (defaults to a sample chart)")
	sample := flag.Bool("sample-voucher", true, "post an opening balance voucher")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ledger := app.NewLedger(app.LedgerDeps{Config: cfg, Pool: pool, Logger: logger})

	chart := defaultChart
	if *chartPath != "" {
		if chart, err = loadChart(*chartPath); err != nil {
			log.Fatalf("load chart: %v", err)
		}
	}

	fmt.Println("→ Seeding chart of accounts...")
	created, err := seedAccounts(ctx, ledger.Accounts, chart)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}
	fmt.Printf("  %d accounts\n", len(created))

	fmt.Println("→ Seeding voucher types...")
	types, err := seedVoucherTypes(ctx, ledger.Vouchers)
	if err != nil {
		log.Fatalf("seed voucher types: %v", err)
	}

	if *sample && len(types) > 0 {
		fmt.Println("→ Posting opening balance...")
		if _, err := seedOpeningBalance(ctx, ledger.Accounts, ledger.Vouchers, types[0]); err != nil {
			log.Fatalf("seed voucher: %v", err)
		}
	}
	fmt.Println("✓ Seed complete")
}

func loadChart(path string) ([]seedAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chart []seedAccount
	if err := json.Unmarshal(data, &chart); err != nil {
		return nil, err
	}
	return chart, nil
}

func seedAccounts(ctx context.Context, svc *accounts.Service, chart []seedAccount) ([]accounts.Account, error) {
	inputs := make([]accounts.AccountInput, 0, len(chart))
	for _, row := range chart {
		t, err := accounts.ParseAccountType(row.Type)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", row.Number, err)
		}
		inputs = append(inputs, accounts.AccountInput{
			Number:       row.Number,
			Name:         row.Name,
			Type:         t,
			ParentNumber: row.Parent,
		})
	}
	created, err := svc.Import(ctx, inputs, accounts.BulkVersion)
	if verrs, ok := shared.AsValidation(err); ok && onlyCode(verrs, shared.CodeNumberNotUnique) {
		fmt.Println("  chart already present, skipping")
		return nil, nil
	}
	return created, err
}

func seedVoucherTypes(ctx context.Context, svc *vouchers.Service) ([]vouchers.VoucherType, error) {
	existing, err := svc.ListVoucherTypes(ctx)
	if err != nil {
		return nil, err
	}
	byPrefix := make(map[string]vouchers.VoucherType, len(existing))
	for _, vt := range existing {
		byPrefix[vt.Prefix] = vt
	}
	out := make([]vouchers.VoucherType, 0, len(defaultTypes))
	for _, in := range defaultTypes {
		if vt, ok := byPrefix[in.Prefix]; ok {
			out = append(out, vt)
			continue
		}
		vt, err := svc.CreateVoucherType(ctx, in)
		if err != nil {
			return nil, err
		}
		fmt.Printf("  %s\n", vt)
		out = append(out, vt)
	}
	return out, nil
}

type accountLookup interface {
	GetByNumber(ctx context.Context, number string) (accounts.Account, error)
}

type voucherPoster interface {
	ListVouchers(ctx context.Context, filter vouchers.ListFilter) ([]vouchers.Voucher, error)
	CreateVoucher(ctx context.Context, in vouchers.VoucherInput) (vouchers.Voucher, error)
	SetLedgers(ctx context.Context, voucherID int64, entries []vouchers.EntryInput, actorID int64) ([]vouchers.Ledger, error)
}

// seedOpeningBalance posts one balanced voucher of type vt, unless vt already
// has vouchers.
func seedOpeningBalance(ctx context.Context, accs accountLookup, vch voucherPoster, vt vouchers.VoucherType) (bool, error) {
	existing, err := vch.ListVouchers(ctx, vouchers.ListFilter{TypeID: vt.ID, Limit: 1})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		fmt.Printf("  %s already has vouchers, skipping\n", vt.Prefix)
		return false, nil
	}
	cash, err := accs.GetByNumber(ctx, "1.1.2")
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			fmt.Println("  account 1.1.2 missing, skipping")
			return false, nil
		}
		return false, err
	}
	capital, err := accs.GetByNumber(ctx, "3.1")
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			fmt.Println("  account 3.1 missing, skipping")
			return false, nil
		}
		return false, err
	}
	v, err := vch.CreateVoucher(ctx, vouchers.VoucherInput{
		TypeID:      vt.ID,
		Date:        time.Now().UTC().Truncate(24 * time.Hour),
		Description: "Opening balance",
	})
	if err != nil {
		return false, err
	}
	amount := decimal.NewFromInt(10000)
	_, err = vch.SetLedgers(ctx, v.ID, []vouchers.EntryInput{
		{AccountID: cash.ID, Amount: amount},
		{AccountID: capital.ID, Amount: amount},
	}, 0)
	if err != nil {
		return false, err
	}
	fmt.Printf("  %s\n", v)
	return true, nil
}

func onlyCode(errs shared.ValidationErrors, code shared.Code) bool {
	codes := errs.Codes()
	if len(codes) == 0 {
		return false
	}
	for _, c := range codes {
		if c != code {
			return false
		}
	}
	return true
}

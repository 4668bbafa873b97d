package vouchers

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
)

// Side is the debit or credit bucket of an entry.
type Side int

const (
	SideNone Side = iota
	SideDebit
	SideCredit
)

func (s Side) String() string {
	switch s {
	case SideDebit:
		return "debit"
	case SideCredit:
		return "credit"
	default:
		return "none"
	}
}

// Classify derives the bucket from the amount sign and the account type.
// Positive amounts on debit-normal accounts (Asset, Expense) are debits,
// positive amounts on the others are credits; a negative amount swaps the
// bucket. Zero amounts and unknown types classify as SideNone.
func Classify(t accounts.AccountType, amount decimal.Decimal) Side {
	if amount.IsZero() || !t.Valid() {
		return SideNone
	}
	if amount.IsPositive() == t.DebitNormal() {
		return SideDebit
	}
	return SideCredit
}

// Totals sums the absolute amounts of each bucket.
func Totals(entries []Ledger) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Side() {
		case SideDebit:
			debit = debit.Add(e.Amount.Abs())
		case SideCredit:
			credit = credit.Add(e.Amount.Abs())
		}
	}
	return debit, credit
}

// Balanced reports whether the debit and credit totals are equal.
func Balanced(entries []Ledger) bool {
	debit, credit := Totals(entries)
	return debit.Equal(credit)
}

func filterSide(entries []Ledger, side Side) []Ledger {
	var out []Ledger
	for _, e := range entries {
		if e.Side() == side {
			out = append(out, e)
		}
	}
	return out
}

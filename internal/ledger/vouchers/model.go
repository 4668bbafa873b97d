package vouchers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/ledger/accounts"
)

// Status enumerates voucher lifecycle states. Values match the status column.
type Status int

const (
	StatusPending  Status = 1
	StatusApproved Status = 2
	StatusRejected Status = 3
)

// Valid reports whether s is one of the three states.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusRejected
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusApproved:
		return "Approved"
	case StatusRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus accepts the state name in any case.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusPending, StatusApproved, StatusRejected} {
		if strings.EqualFold(st.String(), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("vouchers: unknown status %q", s)
}

// VoucherType names a kind of voucher and owns its number prefix.
type VoucherType struct {
	ID        int64
	Name      string
	Prefix    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t VoucherType) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Prefix)
}

// VoucherTypeInput is the writable part of a voucher type.
type VoucherTypeInput struct {
	Name    string `validate:"required"`
	Prefix  string `validate:"required,max=4"`
	ActorID int64  `validate:"-"`
}

// Voucher is a dated transaction record. Entries is populated by GetVoucher.
type Voucher struct {
	ID          int64
	Number      string
	Date        time.Time
	TypeID      int64
	Type        VoucherType
	Description string
	Status      Status
	Entries     []Ledger
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (v Voucher) String() string {
	return v.Number
}

// Debits returns the entries classified as debits, recomputed on each call.
func (v Voucher) Debits() []Ledger {
	return filterSide(v.Entries, SideDebit)
}

// Credits returns the entries classified as credits, recomputed on each call.
func (v Voucher) Credits() []Ledger {
	return filterSide(v.Entries, SideCredit)
}

// Amount is the debit total of the voucher's entries.
func (v Voucher) Amount() decimal.Decimal {
	debit, _ := Totals(v.Entries)
	return debit
}

// Ledger is one posting of a voucher against an account. AccountNumber and
// AccountType are read from the account when entries are loaded.
type Ledger struct {
	ID            int64
	VoucherID     int64
	AccountID     int64
	AccountNumber string
	AccountType   accounts.AccountType
	Amount        decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Side returns the bucket the entry belongs to.
func (l Ledger) Side() Side {
	return Classify(l.AccountType, l.Amount)
}

// EntryInput is one requested posting for SetLedgers.
type EntryInput struct {
	AccountID int64           `validate:"required"`
	Amount    decimal.Decimal `validate:"nonzero_decimal"`
}

// VoucherInput carries the fields needed to create a voucher.
type VoucherInput struct {
	TypeID      int64     `validate:"required"`
	Date        time.Time `validate:"required"`
	Description string    `validate:"-"`
	ActorID     int64     `validate:"-"`
}

// VoucherUpdate lists the editable fields of a voucher. Nil fields are left untouched.
type VoucherUpdate struct {
	Date        *time.Time
	Description *string
	Status      *Status
	ActorID     int64
}

// ViolationKind names a voucher inconsistency found by Verify.
type ViolationKind string

const (
	ViolationUnbalanced  ViolationKind = "unbalanced"
	ViolationStatusDrift ViolationKind = "status_drift"
)

// Violation describes a voucher breaking a ledger invariant.
type Violation struct {
	VoucherID int64
	Number    string
	Kind      ViolationKind
	Detail    string
}

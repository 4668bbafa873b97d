package accounts

import (
	"fmt"
	"strings"
	"time"
)

// AccountType enumerates chart of accounts categories. Values match the
// account_type column.
type AccountType int

const (
	AccountTypeAsset     AccountType = 1
	AccountTypeLiability AccountType = 2
	AccountTypeEquity    AccountType = 3
	AccountTypeRevenue   AccountType = 4
	AccountTypeExpense   AccountType = 5
)

var accountTypeNames = map[AccountType]string{
	AccountTypeAsset:     "Asset",
	AccountTypeLiability: "Liability",
	AccountTypeEquity:    "Equity",
	AccountTypeRevenue:   "Revenue",
	AccountTypeExpense:   "Expense",
}

// Valid reports whether t is one of the five categories.
func (t AccountType) Valid() bool {
	_, ok := accountTypeNames[t]
	return ok
}

func (t AccountType) String() string {
	if name, ok := accountTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AccountType(%d)", int(t))
}

// DebitNormal reports whether a positive amount on t is a debit.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// ParseAccountType accepts the category name in any case.
func ParseAccountType(s string) (AccountType, error) {
	for t, name := range accountTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("accounts: unknown account type %q", s)
}

// Account models a chart of accounts node.
type Account struct {
	ID          int64
	Number      string
	Name        string
	Type        AccountType
	ParentID    *int64
	Description string
	Inactive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Account) String() string {
	return fmt.Sprintf("%s - %s", a.Number, a.Name)
}

// Persisted reports whether the account already has a stored identity.
func (a Account) Persisted() bool {
	return a.ID != 0
}

// Depth counts the dots of the account number.
func (a Account) Depth() int {
	return strings.Count(a.Number, ".")
}

// AccountInput carries the writable fields of an account. The parent may be
// given by id or by number; ParentID wins when both are set.
type AccountInput struct {
	Number       string
	Name         string
	Type         AccountType
	ParentID     *int64
	ParentNumber string
	Description  string
	Inactive     bool
	ActorID      int64
}

func (in AccountInput) hasParent() bool {
	return (in.ParentID != nil && *in.ParentID != 0) || strings.TrimSpace(in.ParentNumber) != ""
}

func (in AccountInput) toAccount(id int64) Account {
	return Account{
		ID:          id,
		Number:      strings.TrimSpace(in.Number),
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
		Description: in.Description,
		Inactive:    in.Inactive,
	}
}

// ViolationKind names a hierarchy inconsistency found by Verify.
type ViolationKind string

const (
	ViolationParentMissing       ViolationKind = "parent_missing"
	ViolationNumberPrefix        ViolationKind = "number_prefix"
	ViolationTypeMismatch        ViolationKind = "type_mismatch"
	ViolationActiveUnderInactive ViolationKind = "active_under_inactive"
)

// Violation describes an account breaking a hierarchy invariant.
type Violation struct {
	AccountID int64
	Number    string
	Kind      ViolationKind
	Detail    string
}

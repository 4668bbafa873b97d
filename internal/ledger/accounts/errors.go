package accounts

import (
	"errors"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
)

var (
	// ErrNotFound indicates a missing account.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrInvalidID indicates a non-positive id.
	ErrInvalidID = errors.New("accounts: invalid account id")
)

// BulkVersion is the declared semantics of bulk account mutations.
//
//	1 - the inactive flag of an account is propagated to all sub accounts
const BulkVersion compliance.Version = 1

// BulkGuard gates every bulk account mutation.
var BulkGuard = compliance.NewGuard("accounts", BulkVersion)

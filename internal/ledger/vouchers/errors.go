package vouchers

import (
	"errors"

	"github.com/odyssey-erp/ledgercore/internal/compliance"
)

var (
	// ErrNotFound indicates a missing voucher.
	ErrNotFound = errors.New("vouchers: voucher not found")
	// ErrTypeNotFound indicates a missing voucher type.
	ErrTypeNotFound = errors.New("vouchers: voucher type not found")
	// ErrInvalidID indicates a non-positive id.
	ErrInvalidID = errors.New("vouchers: invalid id")
)

// BulkVersion is the declared semantics of bulk ledger mutations.
//
//	1 - numbers are generated once on create; status is propagated to every entry
const BulkVersion compliance.Version = 1

// BulkGuard gates every bulk ledger mutation.
var BulkGuard = compliance.NewGuard("vouchers", BulkVersion)

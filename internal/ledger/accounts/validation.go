package accounts

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Candidate is the state an account save is about to persist, together with
// the previously persisted state (nil when creating) and the resolved parent.
type Candidate struct {
	Account  Account
	Previous *Account
	Parent   *Account
	// NumberTaken is true when another stored account already uses Account.Number.
	NumberTaken bool
}

// Validate applies the hierarchy rules in order and collects every failure.
func Validate(c Candidate) shared.ValidationErrors {
	errs := shared.NewValidationErrors()
	a := c.Account
	parent := c.Parent
	creating := c.Previous == nil

	if strings.TrimSpace(a.Name) == "" {
		errs.Add("name", shared.CodeNameEmpty, "name can not be blank")
	}
	if strings.TrimSpace(a.Number) == "" {
		errs.Add("account_number", shared.CodeNumberEmpty, "account number can not be blank")
	}
	if !a.Type.Valid() {
		errs.Add("account_type", shared.CodeTypeEmpty, "account type can not be empty")
	}
	if parent != nil {
		if creating && parent.Inactive {
			errs.Add("parent", shared.CodeParentInactive, "can't create child for inactive parent")
		}
		if !strings.HasPrefix(a.Number, parent.Number+".") {
			errs.Add("account_number", shared.CodeNumberPrefixMismatch,
				fmt.Sprintf("account number should have the prefix %s.", parent.Number))
		}
		if a.Type != parent.Type {
			errs.Add("account_type", shared.CodeTypeMismatch, "account type should be same as parent's account type")
		}
		if parent.Inactive && !a.Inactive {
			errs.Add("inactive", shared.CodeCannotReactivateUnderInactiveParent,
				"can't make an account active if parent is inactive")
		}
	}
	if c.NumberTaken {
		errs.Add("account_number", shared.CodeNumberNotUnique, "account number must be unique")
	}
	return errs
}

// inactivated reports whether the save flips inactive from false to true,
// the only transition that propagates to sub accounts.
func inactivated(previous *Account, saved Account) bool {
	return previous != nil && !previous.Inactive && saved.Inactive
}

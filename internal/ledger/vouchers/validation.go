package vouchers

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("nonzero_decimal", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && !value.IsZero()
	}); err != nil {
		return nil, fmt.Errorf("vouchers: register nonzero_decimal: %w", err)
	}
	return v, nil
}

func structValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	return validate, errValidate
}

type fieldRule struct {
	field   string
	code    shared.Code
	message string
}

// rules maps "StructField/tag" to the reported field error.
var rules = map[string]fieldRule{
	"Name/required":          {"name", shared.CodeNameEmpty, "name can not be blank"},
	"Prefix/required":        {"prefix", shared.CodePrefixEmpty, "prefix can not be blank"},
	"Prefix/max":             {"prefix", shared.CodePrefixTooLong, "prefix can have at most 4 characters"},
	"TypeID/required":        {"voucher_type", shared.CodeTypeEmpty, "voucher type can not be empty"},
	"Date/required":          {"voucher_date", shared.CodeDateEmpty, "voucher date can not be empty"},
	"AccountID/required":     {"account", shared.CodeAccountEmpty, "account can not be empty"},
	"Amount/nonzero_decimal": {"amount", shared.CodeAmountZero, "amount can not be zero"},
}

// check runs the struct tags of v and adds the mapped failures to errs, with
// field names prefixed by scope.
func check(errs shared.ValidationErrors, scope string, v any) error {
	vld, err := structValidator()
	if err != nil {
		return err
	}
	err = vld.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("vouchers: validate %T: %w", v, err)
	}
	for _, fe := range fieldErrs {
		rule, ok := rules[fe.StructField()+"/"+fe.Tag()]
		if !ok {
			return fmt.Errorf("vouchers: no rule for %s/%s", fe.StructField(), fe.Tag())
		}
		errs.Add(scope+rule.field, rule.code, rule.message)
	}
	return nil
}

func normalizeType(in VoucherTypeInput) VoucherTypeInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Prefix = strings.TrimSpace(in.Prefix)
	return in
}

func validateType(in VoucherTypeInput) (shared.ValidationErrors, error) {
	errs := shared.NewValidationErrors()
	if err := check(errs, "", in); err != nil {
		return nil, err
	}
	return errs, nil
}

func validateVoucher(in VoucherInput) (shared.ValidationErrors, error) {
	errs := shared.NewValidationErrors()
	if err := check(errs, "", in); err != nil {
		return nil, err
	}
	return errs, nil
}

func validateEntries(entries []EntryInput) (shared.ValidationErrors, error) {
	errs := shared.NewValidationErrors()
	for i, e := range entries {
		if err := check(errs, fmt.Sprintf("entries[%d].", i), e); err != nil {
			return nil, err
		}
	}
	return errs, nil
}

func debitCreditMismatch(debit, credit decimal.Decimal) shared.ValidationErrors {
	errs := shared.NewValidationErrors()
	errs.Add("entries", shared.CodeDebitCreditMismatch,
		fmt.Sprintf("debit total %s does not match credit total %s", debit, credit))
	return errs
}

package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a user-correctable validation failure.
type Code string

const (
	CodeNameEmpty                           Code = "NameEmpty"
	CodeNumberEmpty                         Code = "NumberEmpty"
	CodeTypeEmpty                           Code = "TypeEmpty"
	CodeParentInactive                      Code = "ParentInactive"
	CodeParentNotFound                      Code = "ParentNotFound"
	CodeParentCycle                         Code = "ParentCycle"
	CodeNumberPrefixMismatch                Code = "NumberPrefixMismatch"
	CodeTypeMismatch                        Code = "TypeMismatch"
	CodeCannotReactivateUnderInactiveParent Code = "CannotReactivateUnderInactiveParent"
	CodeNumberNotUnique                     Code = "NumberNotUnique"

	CodePrefixEmpty     Code = "PrefixEmpty"
	CodePrefixTooLong   Code = "PrefixTooLong"
	CodePrefixNotUnique Code = "PrefixNotUnique"

	CodeDateEmpty           Code = "DateEmpty"
	CodeStatusInvalid       Code = "StatusInvalid"
	CodeAccountEmpty        Code = "AccountEmpty"
	CodeAccountNotFound     Code = "AccountNotFound"
	CodeAmountZero          Code = "AmountZero"
	CodeDebitCreditMismatch Code = "DebitCreditMismatch"
)

// ErrValidation matches every ValidationErrors value through errors.Is.
var ErrValidation = errors.New("validation failed")

// FieldError is a single failure attached to a field.
type FieldError struct {
	Code    Code
	Message string
}

// ValidationErrors collects failures keyed by field name.
type ValidationErrors map[string][]FieldError

// NewValidationErrors returns an empty collection.
func NewValidationErrors() ValidationErrors {
	return ValidationErrors{}
}

// Add appends a failure for field.
func (v ValidationErrors) Add(field string, code Code, message string) {
	v[field] = append(v[field], FieldError{Code: code, Message: message})
}

// Merge copies every failure of other into v.
func (v ValidationErrors) Merge(other ValidationErrors) {
	for field, errs := range other {
		v[field] = append(v[field], errs...)
	}
}

// Has reports whether any field carries code.
func (v ValidationErrors) Has(code Code) bool {
	for _, errs := range v {
		for _, e := range errs {
			if e.Code == code {
				return true
			}
		}
	}
	return false
}

// HasField reports whether field carries code.
func (v ValidationErrors) HasField(field string, code Code) bool {
	for _, e := range v[field] {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Codes lists every code in field order.
func (v ValidationErrors) Codes() []Code {
	var out []Code
	for _, field := range v.fields() {
		for _, e := range v[field] {
			out = append(out, e.Code)
		}
	}
	return out
}

// Err returns v as an error, or nil when no failure was collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, field := range v.fields() {
		for _, e := range v[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, e.Message))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

func (v ValidationErrors) fields() []string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// AsValidation extracts ValidationErrors from err.
func AsValidation(err error) (ValidationErrors, bool) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}

// StorageError wraps a transaction or connectivity failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError unless it is nil or already one.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

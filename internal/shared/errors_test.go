package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorsCollect(t *testing.T) {
	errs := NewValidationErrors()
	require.NoError(t, errs.Err())

	errs.Add("name", CodeNameEmpty, "name is required")
	errs.Add("account_number", CodeNumberEmpty, "account number is required")
	errs.Add("name", CodeNameEmpty, "again")

	err := errs.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, errs.Has(CodeNumberEmpty))
	assert.True(t, errs.HasField("name", CodeNameEmpty))
	assert.False(t, errs.HasField("name", CodeNumberEmpty))
	assert.Equal(t, []Code{CodeNumberEmpty, CodeNameEmpty, CodeNameEmpty}, errs.Codes())
	assert.Equal(t, "validation failed: account_number: account number is required; name: name is required; name: again", err.Error())
}

func TestValidationErrorsMergeAndAs(t *testing.T) {
	a := NewValidationErrors()
	a.Add("entries", CodeDebitCreditMismatch, "unbalanced")
	b := NewValidationErrors()
	b.Add("entries[0].account_id", CodeAccountNotFound, "missing")
	a.Merge(b)

	wrapped := fmt.Errorf("set ledgers: %w", a.Err())
	got, ok := AsValidation(wrapped)
	require.True(t, ok)
	assert.Len(t, got, 2)

	_, ok = AsValidation(errors.New("plain"))
	assert.False(t, ok)
}

func TestStorageWrapsOnce(t *testing.T) {
	assert.NoError(t, Storage("op", nil))

	cause := errors.New("conn reset")
	err := Storage("accounts.find", cause)
	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage: accounts.find: conn reset", err.Error())

	again := Storage("outer", fmt.Errorf("ctx: %w", err))
	var se *StorageError
	require.ErrorAs(t, again, &se)
	assert.Equal(t, "accounts.find", se.Op)
	assert.False(t, IsStorage(cause))
}

package compliance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardCheck(t *testing.T) {
	g := NewGuard("accounts", 1)

	require.NoError(t, g.Check(1))

	err := g.Check(2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompliance)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, Version(2), cerr.Received)
	assert.Equal(t, Version(1), cerr.Expected)
	assert.Equal(t, "compliance error: accounts expected version is 1 (received 2)", err.Error())
}

func TestGuardRejectsUntaggedCallers(t *testing.T) {
	assert.ErrorIs(t, NewGuard("vouchers", 1).Check(0), ErrCompliance)
	assert.ErrorIs(t, NewGuard("", 0).Check(0), ErrCompliance)
	assert.Equal(t, "compliance error: expected version is 0 (received 0)", NewGuard("", 0).Check(0).Error())
}

func TestGuardRunSkipsFnOnMismatch(t *testing.T) {
	g := NewGuard("vouchers", 1)
	called := false

	err := g.Run(3, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCompliance)
	assert.False(t, called)

	boom := errors.New("boom")
	err = g.Run(1, func() error {
		called = true
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, called)
}

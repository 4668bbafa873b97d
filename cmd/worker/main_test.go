package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/ledgercore/internal/app"
	"github.com/odyssey-erp/ledgercore/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	assert.Equal(t, "1", os.Getenv(guard.Env))
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}

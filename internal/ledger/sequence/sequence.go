// Package sequence issues per-prefix, strictly increasing integers used to
// number vouchers. Uniqueness under concurrent callers is delegated to the
// backing store (a locked counter row or an atomic INCR), never to an
// in-process mutex, because callers may live in separate processes.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// ErrEmptyPrefix indicates a blank prefix.
var ErrEmptyPrefix = errors.New("sequence: prefix required")

// Store persists one counter per prefix.
type Store interface {
	// Next increments the counter for prefix and returns the new value. The
	// first call for a prefix returns 1.
	Next(ctx context.Context, prefix string) (int64, error)
	// Peek returns the last issued value, or 0 when none was issued.
	Peek(ctx context.Context, prefix string) (int64, error)
}

// Generator formats numbers from a Store.
type Generator struct {
	store Store
}

// NewGenerator constructs a Generator backed by store.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Next returns the next value for prefix.
func (g *Generator) Next(ctx context.Context, prefix string) (int64, error) {
	if g == nil || g.store == nil {
		return 0, shared.Storage("sequence.next", errors.New("sequence: store not initialised"))
	}
	if strings.TrimSpace(prefix) == "" {
		return 0, ErrEmptyPrefix
	}
	n, err := g.store.Next(ctx, prefix)
	if err != nil {
		return 0, shared.Storage("sequence.next", err)
	}
	return n, nil
}

// GenerateNumber returns "{prefix}-{next zero-padded to 4 digits}".
func (g *Generator) GenerateNumber(ctx context.Context, prefix string) (string, error) {
	n, err := g.Next(ctx, prefix)
	if err != nil {
		return "", err
	}
	return Format(prefix, n), nil
}

// Format renders a sequence value the way voucher numbers are printed.
// Values above 9999 keep all their digits.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

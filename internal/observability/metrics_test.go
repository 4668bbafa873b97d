package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/healthz")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `ledger_ops_http_requests_total{code="418",route="/healthz"} 1`)
	assert.Contains(t, body, `ledger_ops_http_request_duration_seconds_bucket{route="/healthz"`)
}

func TestLedgerRecorders(t *testing.T) {
	metrics := NewMetrics()

	metrics.VoucherCreated("SV")
	metrics.VoucherCreated("SV")
	metrics.ValidationFailed("voucher.set_ledgers")
	metrics.AccountsCascaded(3)
	metrics.AccountsCascaded(0)
	metrics.SetIntegrityViolations(map[string]int{"unbalanced": 2})

	body := scrape(t, metrics)
	assert.Contains(t, body, `ledger_vouchers_created_total{prefix="SV"} 2`)
	assert.Contains(t, body, `ledger_validation_failures_total{operation="voucher.set_ledgers"} 1`)
	assert.Contains(t, body, `ledger_cascade_accounts_total 3`)
	assert.Contains(t, body, `ledger_integrity_violations{kind="unbalanced"} 2`)

	metrics.SetIntegrityViolations(map[string]int{"status_drift": 1})
	body = scrape(t, metrics)
	assert.NotContains(t, body, `kind="unbalanced"`)
	assert.Contains(t, body, `ledger_integrity_violations{kind="status_drift"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.VoucherCreated("SV")
	metrics.ValidationFailed("x")
	metrics.AccountsCascaded(1)
	metrics.SetIntegrityViolations(nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

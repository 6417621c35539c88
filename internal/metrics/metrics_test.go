package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_DepositCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDepositCreated()
	c.RecordDepositCreated()
	c.RecordDepositCompleted()
	c.RecordDepositFailed("execute_declined")
	c.RecordLedgerCredited()

	if got := testutil.ToFloat64(c.depositCreated); got != 2 {
		t.Errorf("deposit_created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.depositCompleted); got != 1 {
		t.Errorf("deposit_completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.depositFailed.WithLabelValues("execute_declined")); got != 1 {
		t.Errorf("deposit_failed{execute_declined} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ledgerCredited); got != 1 {
		t.Errorf("ledger_credited = %v, want 1", got)
	}
}

func TestCollector_GatewayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGatewayCall("token_grant", "ok")
	c.RecordGatewayCall("execute", "retryable_status")
	c.RecordGatewayLatency(150 * time.Millisecond)

	if got := testutil.ToFloat64(c.gatewayCall.WithLabelValues("token_grant", "ok")); got != 1 {
		t.Errorf("gateway_call{token_grant,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.gatewayCall.WithLabelValues("execute", "retryable_status")); got != 1 {
		t.Errorf("gateway_call{execute,retryable_status} = %v, want 1", got)
	}
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordDepositCreated()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, "minipay_deposit_created_total 1") {
		t.Errorf("metrics output missing deposit counter:\n%s", body)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Negotiation("counter", true)
	m.Negotiation("counter", true)
	m.Negotiation("counter", false)
	m.Payment("labour", "release", "blocked")
	m.Conflict()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NegotiationActions.WithLabelValues("counter", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NegotiationActions.WithLabelValues("counter", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentTransitions.WithLabelValues("labour", "release", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreConflicts))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Negotiation("accept", true)
		m.Payment("machine", "release", "ok")
		m.Conflict()
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Payment("machine", "mark_paid", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agrihub_payment_transitions_total{action="mark_paid",flow="machine",result="ok"} 1`)
}

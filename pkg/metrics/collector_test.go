package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsRequests(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRequest(OutcomeSuccess, 200*time.Millisecond)
	c.RecordRequest(OutcomeViolation, 100*time.Millisecond)
	c.RecordRequest(OutcomeViolation, 150*time.Millisecond)
	c.RecordViolations([]string{"pii/email", "jailbreak", "pii/email"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues(OutcomeViolation)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.violations.WithLabelValues("pii/email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.violations.WithLabelValues("jailbreak")))
}

func TestCollectorGatewayHealth(t *testing.T) {
	c := NewCollector(nil)

	c.RecordHealth(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayUp))

	c.RecordHealth(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.gatewayUp))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.healthChecks.WithLabelValues("unhealthy")))

	c.RecordRestart(ReasonConfigChanged)
	c.RecordStartFailure()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.restarts.WithLabelValues(ReasonConfigChanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.startFailures))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordRequest(OutcomeSuccess, time.Second)
		c.RecordViolations([]string{"pii/email"})
		c.RecordHealth(true)
		c.RecordRestart(ReasonUnhealthy)
		c.RecordStartFailure()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRestart(ReasonUnhealthy)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `guardchat_gateway_restarts_total{reason="unhealthy"} 1`)
}

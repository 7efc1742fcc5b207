package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
)

func TestMetrics_Contadores(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveAttempt("op-1", "send", metrics.OutcomeRetryable, 20*time.Millisecond)
	m.ObserveAttempt("op-1", "send", metrics.OutcomeOK, 10*time.Millisecond)
	m.IncExhausted("op-1", "query")
	m.IncGlosaDetected("TECHNICAL")
	m.IncGlosaDetected("TECHNICAL")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSAttempts.WithLabelValues("op-1", "send", metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSExhausted.WithLabelValues("op-1", "query")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GlosasDetected.WithLabelValues("TECHNICAL")))
}

func TestMetrics_NilNoFalla(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("op", "send", metrics.OutcomeOK, time.Second)
		m.IncBatchTransition("PAID")
		m.IncNotification("GLOSA_CREATED", "ok")
	})
}

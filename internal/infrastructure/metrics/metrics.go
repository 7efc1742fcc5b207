// Package metrics expone las métricas Prometheus del motor de cuentas.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resultados de un intento contra el webservice.
const (
	OutcomeOK        = "ok"
	OutcomeRetryable = "retryable"
	OutcomeTerminal  = "terminal"
	OutcomeCancelled = "cancelled"
)

// Metrics agrupa los colectores. Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	WSAttempts       *prometheus.CounterVec
	WSLatency        *prometheus.HistogramVec
	WSExhausted      *prometheus.CounterVec
	BatchTransitions *prometheus.CounterVec
	GlosasDetected   *prometheus.CounterVec
	GlosasSkipped    *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
}

// New registra los colectores en reg (prometheus.DefaultRegisterer en producción,
// un registry propio en pruebas).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WSAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_ws_attempts_total",
			Help: "Intentos contra el webservice de la operadora por operación y resultado",
		}, []string{"operator", "operation", "outcome"}),

		WSLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claims_ws_attempt_duration_seconds",
			Help:    "Duración de cada intento contra el webservice",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operator", "operation"}),

		WSExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_ws_retries_exhausted_total",
			Help: "Operaciones que agotaron los reintentos",
		}, []string{"operator", "operation"}),

		BatchTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_batch_transitions_total",
			Help: "Transiciones de estado de lotes",
		}, []string{"status"}),

		GlosasDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_glosas_detected_total",
			Help: "Glosas creadas a partir de respuestas de operadoras",
		}, []string{"classification"}),

		GlosasSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_glosa_entries_skipped_total",
			Help: "Líneas de glosa descartadas al procesar la respuesta",
		}, []string{"reason"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_notifications_total",
			Help: "Notificaciones emitidas por tipo y resultado del sink",
		}, []string{"kind", "result"}),
	}
}

// ObserveAttempt registra un intento y su duración.
func (m *Metrics) ObserveAttempt(operator, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.WSAttempts.WithLabelValues(operator, operation, outcome).Inc()
	m.WSLatency.WithLabelValues(operator, operation).Observe(d.Seconds())
}

// IncExhausted registra una operación que agotó los reintentos.
func (m *Metrics) IncExhausted(operator, operation string) {
	if m != nil {
		m.WSExhausted.WithLabelValues(operator, operation).Inc()
	}
}

// IncBatchTransition registra la llegada de un lote a status.
func (m *Metrics) IncBatchTransition(status string) {
	if m != nil {
		m.BatchTransitions.WithLabelValues(status).Inc()
	}
}

// IncGlosaDetected registra una glosa creada.
func (m *Metrics) IncGlosaDetected(classification string) {
	if m != nil {
		m.GlosasDetected.WithLabelValues(classification).Inc()
	}
}

// IncGlosaSkipped registra una línea descartada.
func (m *Metrics) IncGlosaSkipped(reason string) {
	if m != nil {
		m.GlosasSkipped.WithLabelValues(reason).Inc()
	}
}

// IncNotification registra una notificación emitida.
func (m *Metrics) IncNotification(kind, result string) {
	if m != nil {
		m.Notifications.WithLabelValues(kind, result).Inc()
	}
}

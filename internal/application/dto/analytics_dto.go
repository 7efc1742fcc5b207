package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Query parameters ──────────────────────────────────────────────────────────

// AnalyticsFilter ventana [From, To) y operadora opcional para GET /api/analytics/*.
// From cero = sin límite inferior; To cero = ahora.
type AnalyticsFilter struct {
	From       time.Time `query:"from"`
	To         time.Time `query:"to"`
	OperatorID string    `query:"operator_id"`
}

// ── Resumen ───────────────────────────────────────────────────────────────────

// BreakdownDTO total glosado agrupado por una clave (clasificación o código de procedimiento).
type BreakdownDTO struct {
	Key            string          `json:"key"`
	Count          int             `json:"count"`
	RejectedAmount decimal.Decimal `json:"rejected_amount"`
	Share          decimal.Decimal `json:"share"` // Fracción del total glosado (0..1)
}

// MonthlyTrendDTO glosado de un mes y variación frente al mes anterior.
type MonthlyTrendDTO struct {
	Month          string           `json:"month"` // YYYY-MM
	Count          int              `json:"count"`
	RejectedAmount decimal.Decimal  `json:"rejected_amount"`
	Change         *decimal.Decimal `json:"change,omitempty"` // (actual - anterior) / anterior; nil si anterior = 0
}

// GlosaSummaryDTO respuesta de GET /api/analytics/summary.
type GlosaSummaryDTO struct {
	From             *time.Time        `json:"from,omitempty"`
	To               time.Time         `json:"to"`
	OperatorID       string            `json:"operator_id,omitempty"`
	SubmittedGuides  int               `json:"submitted_guides"`
	GuidesWithGlosa  int               `json:"guides_with_glosa"`
	RejectionRate    decimal.Decimal   `json:"rejection_rate"`
	TotalRejected    decimal.Decimal   `json:"total_rejected"`
	TotalRecovered   decimal.Decimal   `json:"total_recovered"`
	ByClassification []BreakdownDTO    `json:"by_classification"`
	ByProcedure      []BreakdownDTO    `json:"by_procedure"`
	Trend            []MonthlyTrendDTO `json:"trend"`
}

// ── Alertas ───────────────────────────────────────────────────────────────────

// OperatorAlertDTO operadora cuya tasa de glosa supera el múltiplo de la tasa histórica.
type OperatorAlertDTO struct {
	OperatorID      string          `json:"operator_id"`
	SubmittedGuides int             `json:"submitted_guides"`
	GuidesWithGlosa int             `json:"guides_with_glosa"`
	RejectionRate   decimal.Decimal `json:"rejection_rate"`
	HistoricalRate  decimal.Decimal `json:"historical_rate"`
	Threshold       decimal.Decimal `json:"threshold"`
}

// OverdueGlosaDTO glosa con plazo de recurso vencido sin decisión.
type OverdueGlosaDTO struct {
	GlosaID        string          `json:"glosa_id"`
	GuideID        string          `json:"guide_id"`
	OperatorID     string          `json:"operator_id"`
	Code           string          `json:"code"`
	Status         string          `json:"status"`
	RejectedAmount decimal.Decimal `json:"rejected_amount"`
	AppealDeadline time.Time       `json:"appeal_deadline"`
}

// AlertsDTO respuesta de GET /api/analytics/alerts.
type AlertsDTO struct {
	Multiple       decimal.Decimal    `json:"multiple"`
	HistoricalRate decimal.Decimal    `json:"historical_rate"`
	Operators      []OperatorAlertDTO `json:"operators"`
	Overdue        []OverdueGlosaDTO  `json:"overdue"`
}

package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GuideFact fila mínima de una guía enviada, para analítica.
type GuideFact struct {
	GuideID        string
	OperatorID     string
	Status         string
	TotalAmount    decimal.Decimal
	RejectedAmount decimal.Decimal
	SubmittedAt    time.Time
}

// GlosaFact fila mínima de una glosa, para analítica.
type GlosaFact struct {
	GlosaID         string
	GuideID         string
	OperatorID      string
	Classification  string
	Code            string
	ProcedureCode   string // Vacío si la glosa es de la guía completa
	Status          string
	RejectedAmount  decimal.Decimal
	RecoveredAmount decimal.Decimal
	RejectionDate   time.Time
	AppealDeadline  time.Time
}

// AnalyticsRepository consultas de solo lectura sobre el histórico de cuentas.
// operatorID vacío = todas las operadoras. Los rangos son [from, to).
type AnalyticsRepository interface {
	ListGuideFacts(ctx context.Context, tenantID, operatorID string, from, to time.Time) ([]GuideFact, error)
	ListGlosaFacts(ctx context.Context, tenantID, operatorID string, from, to time.Time) ([]GlosaFact, error)
}

package entity

import (
	"strings"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Clasificación de la glosa según el prefijo del código de la operadora.
const (
	GlosaAdministrative = "ADMINISTRATIVE"
	GlosaTechnical      = "TECHNICAL"
	GlosaFinancial      = "FINANCIAL"
)

// Estados de la glosa. ACCEPTED y ACCEPTED_WITH_RECOVERY son terminales.
//
//	PENDING → UNDER_REVIEW → APPEAL_FILED → ACCEPTED_WITH_RECOVERY | ACCEPTED
//	PENDING | UNDER_REVIEW → ACCEPTED (sin recurso)
const (
	GlosaStatusPending              = "PENDING"
	GlosaStatusUnderReview          = "UNDER_REVIEW"
	GlosaStatusAppealFiled          = "APPEAL_FILED"
	GlosaStatusAcceptedWithRecovery = "ACCEPTED_WITH_RECOVERY"
	GlosaStatusAccepted             = "ACCEPTED"
)

// Glosa registro de rechazo/descuento de la operadora sobre una guía.
// RejectedAmount no cambia tras la creación; lo recuperado se lleva en RecoveredAmount.
type Glosa struct {
	ID                    string
	TenantID              string
	BatchID               string
	GuideID               string
	GuideNumber           string
	RejectionDate         time.Time
	Classification        string
	Code                  string
	Description           string
	RejectedAmount        decimal.Decimal
	OriginalAmount        decimal.Decimal
	ItemSequence          *int
	ItemCode              string
	Status                string
	Justification         string // Texto libre del prestador para el recurso
	RecoveredAmount       decimal.Decimal
	OperatorJustification string
	AppealDeadline        time.Time
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewGlosa crea una glosa PENDING validando rejected ≤ original.
func NewGlosa(g Glosa, now time.Time) (*Glosa, error) {
	if strings.TrimSpace(g.GuideID) == "" {
		return nil, domain.Validationf("glosa sin guía")
	}
	if strings.TrimSpace(g.Code) == "" {
		return nil, domain.Validationf("glosa sin código de la operadora")
	}
	if !g.RejectedAmount.IsPositive() {
		return nil, domain.Validationf("valor glosado debe ser positivo (código %s)", g.Code)
	}
	if g.RejectedAmount.GreaterThan(g.OriginalAmount) {
		return nil, domain.Validationf("valor glosado %s mayor que el original %s (código %s)",
			g.RejectedAmount.StringFixed(2), g.OriginalAmount.StringFixed(2), g.Code)
	}
	g.RejectedAmount = g.RejectedAmount.Round(2)
	g.OriginalAmount = g.OriginalAmount.Round(2)
	g.Status = GlosaStatusPending
	g.RecoveredAmount = decimal.Zero
	g.CreatedAt = now
	g.UpdatedAt = now
	return &g, nil
}

// Terminal indica si la glosa ya no admite transiciones.
func (g *Glosa) Terminal() bool {
	return g.Status == GlosaStatusAccepted || g.Status == GlosaStatusAcceptedWithRecovery
}

// MarkUnderReview PENDING → UNDER_REVIEW.
func (g *Glosa) MarkUnderReview(now time.Time) error {
	if g.Status != GlosaStatusPending {
		return domain.InvalidStatef("glosa %s en estado %s: solo se revisa desde PENDING", g.ID, g.Status)
	}
	g.Status = GlosaStatusUnderReview
	g.UpdatedAt = now
	return nil
}

// FileAppeal UNDER_REVIEW → APPEAL_FILED guardando la justificación del prestador.
func (g *Glosa) FileAppeal(justification string, now time.Time) error {
	if g.Status != GlosaStatusUnderReview {
		return domain.InvalidStatef("glosa %s en estado %s: el recurso requiere UNDER_REVIEW", g.ID, g.Status)
	}
	if strings.TrimSpace(justification) == "" {
		return domain.Validationf("justificación del recurso obligatoria")
	}
	g.Justification = justification
	g.Status = GlosaStatusAppealFiled
	g.UpdatedAt = now
	return nil
}

// Accept acepta la glosa sin recurso: PENDING | UNDER_REVIEW → ACCEPTED.
func (g *Glosa) Accept(now time.Time) error {
	if g.Status != GlosaStatusPending && g.Status != GlosaStatusUnderReview {
		return domain.InvalidStatef("glosa %s en estado %s: no se puede aceptar", g.ID, g.Status)
	}
	g.Status = GlosaStatusAccepted
	g.UpdatedAt = now
	return nil
}

// ResolveAppeal aplica el resultado del recurso: APPEAL_FILED → ACCEPTED_WITH_RECOVERY | ACCEPTED.
func (g *Glosa) ResolveAppeal(result string, recovered decimal.Decimal, operatorJustification string, now time.Time) error {
	if g.Status != GlosaStatusAppealFiled {
		return domain.InvalidStatef("glosa %s en estado %s: no tiene recurso abierto", g.ID, g.Status)
	}
	switch result {
	case RecursoApproved, RecursoPartiallyApproved:
		if !recovered.IsPositive() || recovered.GreaterThan(g.RejectedAmount) {
			return domain.Validationf("monto recuperado %s fuera de rango (glosado %s)",
				recovered.StringFixed(2), g.RejectedAmount.StringFixed(2))
		}
		g.RecoveredAmount = recovered.Round(2)
		g.Status = GlosaStatusAcceptedWithRecovery
	case RecursoDenied:
		g.Status = GlosaStatusAccepted
	default:
		return domain.Validationf("resultado de recurso desconocido %q", result)
	}
	g.OperatorJustification = operatorJustification
	g.UpdatedAt = now
	return nil
}

// AppealOpen indica si la glosa espera el resultado de un recurso.
func (g *Glosa) AppealOpen() bool {
	return g.Status == GlosaStatusAppealFiled
}

// Overdue indica si venció el plazo de recurso y la glosa sigue sin decisión.
func (g *Glosa) Overdue(now time.Time) bool {
	if g.AppealDeadline.IsZero() {
		return false
	}
	return (g.Status == GlosaStatusPending || g.Status == GlosaStatusUnderReview) && now.After(g.AppealDeadline)
}

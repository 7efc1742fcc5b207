package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Estados de la guía TISS.
const (
	GuideStatusDraft             = "DRAFT"              // Editable: se agregan/quitan procedimientos
	GuideStatusFinalized         = "FINALIZED"          // Procedimientos bloqueados, número asignado
	GuideStatusSubmitted         = "SUBMITTED"          // Enviada a la operadora dentro de un lote
	GuideStatusApproved          = "APPROVED"           // Sin glosa
	GuideStatusPartiallyApproved = "PARTIALLY_APPROVED" // Glosa parcial
	GuideStatusRejected          = "REJECTED"           // Glosa total
	GuideStatusPaid              = "PAID"
	GuideStatusCancelled         = "CANCELLED"
)

// DefaultProcedureTable es la tabla TUSS de procedimientos (código 22).
const DefaultProcedureTable = "22"

// Procedure línea de procedimiento de una guía.
type Procedure struct {
	Sequence    int
	Table       string // Código de tabla TISS (22 = TUSS procedimientos)
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitValue   decimal.Decimal
	ExecutedAt  time.Time
}

// Total devuelve cantidad × valor unitario, redondeado a 2 decimales.
func (p Procedure) Total() decimal.Decimal {
	return p.Quantity.Mul(p.UnitValue).Round(2)
}

// Guide representa una guía (cuenta médica) enviada a una operadora.
type Guide struct {
	ID              string
	TenantID        string
	ClinicID        string
	Number          string // Número de la guía en el prestador; inmutable tras Finalize
	AppointmentID   string
	PatientID       string
	BeneficiaryCard string // Número de la cartera del beneficiario
	OperatorID      string
	PlanID          string
	Procedures      []Procedure
	TotalAmount     decimal.Decimal
	ApprovedAmount  decimal.Decimal
	RejectedAmount  decimal.Decimal
	Status          string
	BatchID         string // Vacío hasta entrar en un lote
	CancelReason    string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinalizedAt     *time.Time
	SubmittedAt     *time.Time
}

// NewGuide crea una guía en DRAFT con los procedimientos dados (numerados desde 1).
func NewGuide(id, tenantID, operatorID, planID string, procedures []Procedure, now time.Time) *Guide {
	g := &Guide{
		ID:         id,
		TenantID:   tenantID,
		OperatorID: operatorID,
		PlanID:     planID,
		Status:     GuideStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, p := range procedures {
		g.appendProcedure(p)
	}
	g.recalculate()
	return g
}

// AddProcedure agrega una línea. Solo en DRAFT.
func (g *Guide) AddProcedure(p Procedure, now time.Time) error {
	if g.Status != GuideStatusDraft {
		return domain.InvalidStatef("guía %s en estado %s: no admite procedimientos", g.ID, g.Status)
	}
	if err := validateProcedure(p); err != nil {
		return err
	}
	g.appendProcedure(p)
	g.recalculate()
	g.UpdatedAt = now
	return nil
}

// RemoveProcedure quita la línea con el secuencial dado. Solo en DRAFT.
func (g *Guide) RemoveProcedure(sequence int, now time.Time) error {
	if g.Status != GuideStatusDraft {
		return domain.InvalidStatef("guía %s en estado %s: no admite cambios de procedimientos", g.ID, g.Status)
	}
	idx := -1
	for i, p := range g.Procedures {
		if p.Sequence == sequence {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: procedimiento %d en guía %s", domain.ErrNotFound, sequence, g.ID)
	}
	g.Procedures = append(g.Procedures[:idx], g.Procedures[idx+1:]...)
	g.recalculate()
	g.UpdatedAt = now
	return nil
}

// Finalize bloquea los procedimientos y asigna el número de guía: DRAFT → FINALIZED.
func (g *Guide) Finalize(number string, now time.Time) error {
	if g.Status != GuideStatusDraft {
		return domain.InvalidStatef("guía %s en estado %s: solo se finaliza desde DRAFT", g.ID, g.Status)
	}
	if len(g.Procedures) == 0 {
		return domain.Validationf("guía %s sin procedimientos", g.ID)
	}
	if g.Number != "" {
		return domain.InvalidStatef("guía %s ya tiene número %s", g.ID, g.Number)
	}
	if strings.TrimSpace(number) == "" {
		return domain.Validationf("número de guía vacío")
	}
	g.Number = number
	g.Status = GuideStatusFinalized
	g.FinalizedAt = &now
	g.UpdatedAt = now
	return nil
}

// AttachToBatch vincula la guía a un lote. Solo guías FINALIZED sin lote.
func (g *Guide) AttachToBatch(batchID string, now time.Time) error {
	if g.Status != GuideStatusFinalized {
		return domain.InvalidStatef("guía %s en estado %s: solo guías FINALIZED entran a un lote", g.ID, g.Status)
	}
	if g.BatchID != "" {
		return domain.InvalidStatef("guía %s ya pertenece al lote %s", g.ID, g.BatchID)
	}
	g.BatchID = batchID
	g.UpdatedAt = now
	return nil
}

// DetachFromBatch libera la guía del lote (lote en DRAFT o rechazado).
func (g *Guide) DetachFromBatch(now time.Time) error {
	if g.Status != GuideStatusFinalized {
		return domain.InvalidStatef("guía %s en estado %s: no se puede retirar del lote", g.ID, g.Status)
	}
	g.BatchID = ""
	g.UpdatedAt = now
	return nil
}

// MarkSubmitted FINALIZED → SUBMITTED cuando la operadora aceptó el lote.
func (g *Guide) MarkSubmitted(now time.Time) error {
	if g.Status != GuideStatusFinalized || g.BatchID == "" {
		return domain.InvalidStatef("guía %s en estado %s: no se puede marcar enviada", g.ID, g.Status)
	}
	g.Status = GuideStatusSubmitted
	g.SubmittedAt = &now
	g.UpdatedAt = now
	return nil
}

// ApplyOutcome aplica el resultado del análisis de la operadora.
// rejected = 0 → APPROVED; 0 < rejected < total → PARTIALLY_APPROVED; rejected = total → REJECTED.
func (g *Guide) ApplyOutcome(approved, rejected decimal.Decimal, now time.Time) error {
	if g.Status != GuideStatusSubmitted {
		return domain.InvalidStatef("guía %s en estado %s: solo se aplica resultado a guías SUBMITTED", g.ID, g.Status)
	}
	if rejected.IsNegative() || approved.IsNegative() {
		return domain.Validationf("montos negativos en el resultado de la guía %s", g.Number)
	}
	if rejected.GreaterThan(g.TotalAmount) {
		return domain.Validationf("glosa (%s) mayor que el total de la guía %s (%s)",
			rejected.StringFixed(2), g.Number, g.TotalAmount.StringFixed(2))
	}
	switch {
	case rejected.IsZero():
		g.Status = GuideStatusApproved
	case rejected.Equal(g.TotalAmount):
		g.Status = GuideStatusRejected
	default:
		g.Status = GuideStatusPartiallyApproved
	}
	g.ApprovedAmount = approved.Round(2)
	g.RejectedAmount = rejected.Round(2)
	g.UpdatedAt = now
	return nil
}

// MarkPaid APPROVED | PARTIALLY_APPROVED → PAID.
func (g *Guide) MarkPaid(now time.Time) error {
	if g.Status != GuideStatusApproved && g.Status != GuideStatusPartiallyApproved {
		return domain.InvalidStatef("guía %s en estado %s: no se puede marcar pagada", g.ID, g.Status)
	}
	g.Status = GuideStatusPaid
	g.UpdatedAt = now
	return nil
}

// Cancel cancela la guía desde cualquier estado anterior a PAID. El motivo es obligatorio.
func (g *Guide) Cancel(reason string, now time.Time) error {
	if g.Status == GuideStatusPaid || g.Status == GuideStatusCancelled {
		return domain.InvalidStatef("guía %s en estado %s: no se puede cancelar", g.ID, g.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Validationf("motivo de cancelación obligatorio")
	}
	g.Status = GuideStatusCancelled
	g.CancelReason = reason
	g.UpdatedAt = now
	return nil
}

// SentToOperator indica si la operadora ya conoce la guía (cancelar requiere llamada al WS).
func (g *Guide) SentToOperator() bool {
	switch g.Status {
	case GuideStatusSubmitted, GuideStatusApproved, GuideStatusPartiallyApproved, GuideStatusRejected:
		return true
	}
	return false
}

// Procedure busca una línea por secuencial.
func (g *Guide) Procedure(sequence int) (Procedure, bool) {
	for _, p := range g.Procedures {
		if p.Sequence == sequence {
			return p, true
		}
	}
	return Procedure{}, false
}

func (g *Guide) appendProcedure(p Procedure) {
	next := 1
	for _, existing := range g.Procedures {
		if existing.Sequence >= next {
			next = existing.Sequence + 1
		}
	}
	p.Sequence = next
	if p.Table == "" {
		p.Table = DefaultProcedureTable
	}
	g.Procedures = append(g.Procedures, p)
}

// recalculate mantiene TotalAmount = suma de las líneas.
func (g *Guide) recalculate() {
	total := decimal.Zero
	for _, p := range g.Procedures {
		total = total.Add(p.Total())
	}
	g.TotalAmount = total.Round(2)
}

func validateProcedure(p Procedure) error {
	if strings.TrimSpace(p.Code) == "" {
		return domain.Validationf("código de procedimiento obligatorio")
	}
	if !p.Quantity.IsPositive() {
		return domain.Validationf("cantidad del procedimiento %s debe ser positiva", p.Code)
	}
	if p.UnitValue.IsNegative() {
		return domain.Validationf("valor unitario del procedimiento %s negativo", p.Code)
	}
	return nil
}

// ValidateProcedures valida todas las líneas antes de crear la guía.
func ValidateProcedures(procedures []Procedure) error {
	for _, p := range procedures {
		if err := validateProcedure(p); err != nil {
			return err
		}
	}
	return nil
}

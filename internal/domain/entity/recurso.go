package entity

import (
	"strings"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Resultados posibles de un recurso de glosa.
const (
	RecursoApproved          = "APPROVED"
	RecursoPartiallyApproved = "PARTIALLY_APPROVED"
	RecursoDenied            = "DENIED"
)

// Recurso intento de apelación contra una glosa. Nunca se elimina.
type Recurso struct {
	ID                    string
	TenantID              string
	GlosaID               string
	SubmittedAt           time.Time
	Justification         string   // Inmutable tras el envío
	Attachments           []string // Referencias en el almacenamiento de anexos
	OperatorProtocol      string   // Protocolo devuelto por el WS al recibir el recurso
	ResponseDate          *time.Time
	Result                *string
	OperatorJustification string
	ApprovedAmount        *decimal.Decimal
	Version               int
}

// NewRecurso crea un recurso abierto.
func NewRecurso(id, tenantID, glosaID, justification string, attachments []string, now time.Time) (*Recurso, error) {
	if strings.TrimSpace(justification) == "" {
		return nil, domain.Validationf("justificación del recurso obligatoria")
	}
	return &Recurso{
		ID:            id,
		TenantID:      tenantID,
		GlosaID:       glosaID,
		SubmittedAt:   now,
		Justification: justification,
		Attachments:   attachments,
	}, nil
}

// Open indica si el recurso aún no tiene respuesta.
func (r *Recurso) Open() bool {
	return r.Result == nil
}

// RegisterResponse fija resultado y monto aprobado una única vez.
// Para APPROVED sin monto se asume el total glosado; DENIED registra monto cero.
func (r *Recurso) RegisterResponse(result, operatorJustification string, approved *decimal.Decimal, rejected decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if !r.Open() {
		return decimal.Zero, domain.InvalidStatef("recurso %s ya resuelto como %s", r.ID, *r.Result)
	}
	var amount decimal.Decimal
	switch result {
	case RecursoApproved:
		amount = rejected
		if approved != nil {
			amount = *approved
		}
		if !amount.Equal(rejected) {
			return decimal.Zero, domain.Validationf("recurso aprobado debe recuperar el total glosado (%s)", rejected.StringFixed(2))
		}
	case RecursoPartiallyApproved:
		if approved == nil {
			return decimal.Zero, domain.Validationf("recurso parcial requiere monto aprobado")
		}
		amount = *approved
		if !amount.IsPositive() || !amount.LessThan(rejected) {
			return decimal.Zero, domain.Validationf("monto parcial %s debe estar entre 0 y %s",
				amount.StringFixed(2), rejected.StringFixed(2))
		}
	case RecursoDenied:
		amount = decimal.Zero
	default:
		return decimal.Zero, domain.Validationf("resultado de recurso desconocido %q", result)
	}
	amount = amount.Round(2)
	res := result
	r.Result = &res
	r.ApprovedAmount = &amount
	r.OperatorJustification = operatorJustification
	r.ResponseDate = &at
	return amount, nil
}

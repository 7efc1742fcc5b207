package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// ── Guías ─────────────────────────────────────────────────────────────────────

// CreateGuideRequest body para POST /api/guides.
type CreateGuideRequest struct {
	ClinicID        string             `json:"clinic_id"`
	AppointmentID   string             `json:"appointment_id"`
	PatientID       string             `json:"patient_id" validate:"required"`
	BeneficiaryCard string             `json:"beneficiary_card" validate:"required,max=20"`
	OperatorID      string             `json:"operator_id" validate:"required"`
	PlanID          string             `json:"plan_id" validate:"required"`
	Procedures      []ProcedureRequest `json:"procedures" validate:"dive"`
}

// ProcedureRequest línea de procedimiento. Table vacío = TUSS procedimientos (22).
type ProcedureRequest struct {
	Table       string          `json:"table,omitempty" validate:"omitempty,len=2,numeric"`
	Code        string          `json:"code" validate:"required,max=10"`
	Description string          `json:"description" validate:"max=150"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	ExecutedAt  time.Time       `json:"executed_at" validate:"required"`
}

// ToEntity convierte la línea al modelo de dominio.
func (p ProcedureRequest) ToEntity() entity.Procedure {
	return entity.Procedure{
		Table:       p.Table,
		Code:        p.Code,
		Description: p.Description,
		Quantity:    p.Quantity,
		UnitValue:   p.UnitValue,
		ExecutedAt:  p.ExecutedAt,
	}
}

// CancelRequest body para cancelar una guía o rechazar un lote.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ProcedureResponse línea en respuestas.
type ProcedureResponse struct {
	Sequence    int             `json:"sequence"`
	Table       string          `json:"table"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	Total       decimal.Decimal `json:"total"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// GuideResponse guía en respuestas.
type GuideResponse struct {
	ID              string              `json:"id"`
	Number          string              `json:"number,omitempty"`
	ClinicID        string              `json:"clinic_id,omitempty"`
	AppointmentID   string              `json:"appointment_id,omitempty"`
	PatientID       string              `json:"patient_id"`
	BeneficiaryCard string              `json:"beneficiary_card"`
	OperatorID      string              `json:"operator_id"`
	PlanID          string              `json:"plan_id"`
	Status          string              `json:"status"`
	BatchID         string              `json:"batch_id,omitempty"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ApprovedAmount  decimal.Decimal     `json:"approved_amount"`
	RejectedAmount  decimal.Decimal     `json:"rejected_amount"`
	CancelReason    string              `json:"cancel_reason,omitempty"`
	Procedures      []ProcedureResponse `json:"procedures"`
	CreatedAt       time.Time           `json:"created_at"`
	FinalizedAt     *time.Time          `json:"finalized_at,omitempty"`
	SubmittedAt     *time.Time          `json:"submitted_at,omitempty"`
}

// NewGuideResponse mapea la entidad.
func NewGuideResponse(g *entity.Guide) GuideResponse {
	out := GuideResponse{
		ID:              g.ID,
		Number:          g.Number,
		ClinicID:        g.ClinicID,
		AppointmentID:   g.AppointmentID,
		PatientID:       g.PatientID,
		BeneficiaryCard: g.BeneficiaryCard,
		OperatorID:      g.OperatorID,
		PlanID:          g.PlanID,
		Status:          g.Status,
		BatchID:         g.BatchID,
		TotalAmount:     g.TotalAmount,
		ApprovedAmount:  g.ApprovedAmount,
		RejectedAmount:  g.RejectedAmount,
		CancelReason:    g.CancelReason,
		Procedures:      make([]ProcedureResponse, 0, len(g.Procedures)),
		CreatedAt:       g.CreatedAt,
		FinalizedAt:     g.FinalizedAt,
		SubmittedAt:     g.SubmittedAt,
	}
	for _, p := range g.Procedures {
		out.Procedures = append(out.Procedures, ProcedureResponse{
			Sequence:    p.Sequence,
			Table:       p.Table,
			Code:        p.Code,
			Description: p.Description,
			Quantity:    p.Quantity,
			UnitValue:   p.UnitValue,
			Total:       p.Total(),
			ExecutedAt:  p.ExecutedAt,
		})
	}
	return out
}

// ── Lotes ─────────────────────────────────────────────────────────────────────

// CreateBatchRequest body para POST /api/batches.
type CreateBatchRequest struct {
	OperatorID string `json:"operator_id" validate:"required"`
	ClinicID   string `json:"clinic_id"`
}

// BatchGuideRequest body para agregar una guía a un lote.
type BatchGuideRequest struct {
	GuideID string `json:"guide_id" validate:"required"`
}

// BatchResponse lote en respuestas. El XML se omite salvo que se pida explícitamente.
type BatchResponse struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	ClinicID        string          `json:"clinic_id,omitempty"`
	OperatorID      string          `json:"operator_id"`
	Status          string          `json:"status"`
	GuideIDs        []string        `json:"guide_ids"`
	Checksum        string          `json:"checksum,omitempty"`
	ProtocolNumber  string          `json:"protocol_number,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ApprovedAmount  decimal.Decimal `json:"approved_amount"`
	RejectedAmount  decimal.Decimal `json:"rejected_amount"`
	RecoveredAmount decimal.Decimal `json:"recovered_amount"`
	RejectReason    string          `json:"reject_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

// NewBatchResponse mapea la entidad.
func NewBatchResponse(b *entity.Batch) BatchResponse {
	ids := b.GuideIDs
	if ids == nil {
		ids = []string{}
	}
	return BatchResponse{
		ID:              b.ID,
		Number:          b.Number,
		ClinicID:        b.ClinicID,
		OperatorID:      b.OperatorID,
		Status:          b.Status,
		GuideIDs:        ids,
		Checksum:        b.Checksum,
		ProtocolNumber:  b.ProtocolNumber,
		TotalAmount:     b.TotalAmount,
		ApprovedAmount:  b.ApprovedAmount,
		RejectedAmount:  b.RejectedAmount,
		RecoveredAmount: b.RecoveredAmount,
		RejectReason:    b.RejectReason,
		CreatedAt:       b.CreatedAt,
		SubmittedAt:     b.SubmittedAt,
		RespondedAt:     b.RespondedAt,
		PaidAt:          b.PaidAt,
	}
}

// ProcessResponseResponse resultado de procesar el demonstrativo de la operadora.
type ProcessResponseResponse struct {
	Batch   BatchResponse   `json:"batch"`
	Glosas  []GlosaResponse `json:"glosas"`
	Skipped int             `json:"skipped_entries"`
}

// ── Glosas y recursos ─────────────────────────────────────────────────────────

// GlosaResponse glosa en respuestas.
type GlosaResponse struct {
	ID                    string          `json:"id"`
	BatchID               string          `json:"batch_id"`
	GuideID               string          `json:"guide_id"`
	GuideNumber           string          `json:"guide_number"`
	Classification        string          `json:"classification"`
	Code                  string          `json:"code"`
	Description           string          `json:"description"`
	RejectedAmount        decimal.Decimal `json:"rejected_amount"`
	OriginalAmount        decimal.Decimal `json:"original_amount"`
	RecoveredAmount       decimal.Decimal `json:"recovered_amount"`
	ItemSequence          *int            `json:"item_sequence,omitempty"`
	ItemCode              string          `json:"item_code,omitempty"`
	Status                string          `json:"status"`
	Justification         string          `json:"justification,omitempty"`
	OperatorJustification string          `json:"operator_justification,omitempty"`
	RejectionDate         time.Time       `json:"rejection_date"`
	AppealDeadline        time.Time       `json:"appeal_deadline"`
}

// NewGlosaResponse mapea la entidad.
func NewGlosaResponse(g *entity.Glosa) GlosaResponse {
	return GlosaResponse{
		ID:                    g.ID,
		BatchID:               g.BatchID,
		GuideID:               g.GuideID,
		GuideNumber:           g.GuideNumber,
		Classification:        g.Classification,
		Code:                  g.Code,
		Description:           g.Description,
		RejectedAmount:        g.RejectedAmount,
		OriginalAmount:        g.OriginalAmount,
		RecoveredAmount:       g.RecoveredAmount,
		ItemSequence:          g.ItemSequence,
		ItemCode:              g.ItemCode,
		Status:                g.Status,
		Justification:         g.Justification,
		OperatorJustification: g.OperatorJustification,
		RejectionDate:         g.RejectionDate,
		AppealDeadline:        g.AppealDeadline,
	}
}

// NewGlosaResponses mapea una lista.
func NewGlosaResponses(list []*entity.Glosa) []GlosaResponse {
	out := make([]GlosaResponse, 0, len(list))
	for _, g := range list {
		out = append(out, NewGlosaResponse(g))
	}
	return out
}

// AttachmentRequest anexo del recurso (Content en base64 dentro del JSON).
type AttachmentRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content" validate:"required"`
}

// FileRecursoRequest body para POST /api/glosas/:id/recursos.
type FileRecursoRequest struct {
	Justification string              `json:"justification" validate:"required,max=500"`
	Attachments   []AttachmentRequest `json:"attachments" validate:"dive"`
}

// RecursoResponseRequest respuesta de la operadora al recurso.
// ApprovedAmount es obligatorio para PARTIALLY_APPROVED; en APPROVED vale el total glosado.
type RecursoResponseRequest struct {
	Result                string           `json:"result" validate:"required,oneof=APPROVED PARTIALLY_APPROVED DENIED"`
	OperatorJustification string           `json:"operator_justification" validate:"max=500"`
	ApprovedAmount        *decimal.Decimal `json:"approved_amount,omitempty"`
}

// RecursoResponse recurso en respuestas.
type RecursoResponse struct {
	ID                    string           `json:"id"`
	GlosaID               string           `json:"glosa_id"`
	SubmittedAt           time.Time        `json:"submitted_at"`
	Justification         string           `json:"justification"`
	Attachments           []string         `json:"attachments"`
	OperatorProtocol      string           `json:"operator_protocol,omitempty"`
	ResponseDate          *time.Time       `json:"response_date,omitempty"`
	Result                *string          `json:"result,omitempty"`
	OperatorJustification string           `json:"operator_justification,omitempty"`
	ApprovedAmount        *decimal.Decimal `json:"approved_amount,omitempty"`
}

// NewRecursoResponse mapea la entidad.
func NewRecursoResponse(r *entity.Recurso) RecursoResponse {
	attachments := r.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return RecursoResponse{
		ID:                    r.ID,
		GlosaID:               r.GlosaID,
		SubmittedAt:           r.SubmittedAt,
		Justification:         r.Justification,
		Attachments:           attachments,
		OperatorProtocol:      r.OperatorProtocol,
		ResponseDate:          r.ResponseDate,
		Result:                r.Result,
		OperatorJustification: r.OperatorJustification,
		ApprovedAmount:        r.ApprovedAmount,
	}
}

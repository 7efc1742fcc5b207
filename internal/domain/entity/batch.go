package entity

import (
	"strings"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Estados del lote de guías.
//
//	DRAFT → READY_TO_SEND → SUBMITTED → RESPONSE_PROCESSED → PAID
//	READY_TO_SEND → REJECTED (manual)
const (
	BatchStatusDraft             = "DRAFT"
	BatchStatusReadyToSend       = "READY_TO_SEND"      // XML generado y validado
	BatchStatusSubmitted         = "SUBMITTED"          // Aceptado por el WS, protocolo registrado
	BatchStatusResponseProcessed = "RESPONSE_PROCESSED" // Resultados por guía aplicados
	BatchStatusPaid              = "PAID"
	BatchStatusRejected          = "REJECTED"
)

// Batch lote de guías destinado a un único envío a una operadora.
type Batch struct {
	ID              string
	TenantID        string
	ClinicID        string
	OperatorID      string
	Number          string // numeroLote en el XML
	GuideIDs        []string
	XMLPayload      string
	Checksum        string // Hash del epílogo TISS
	Status          string
	ProtocolNumber  string
	TotalAmount     decimal.Decimal
	ApprovedAmount  decimal.Decimal
	RejectedAmount  decimal.Decimal
	RecoveredAmount decimal.Decimal // Recuperado vía recursos de glosa
	RejectReason    string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SubmittedAt     *time.Time
	RespondedAt     *time.Time
	PaidAt          *time.Time
}

// NewBatch crea un lote en DRAFT.
func NewBatch(id, tenantID, clinicID, operatorID, number string, now time.Time) *Batch {
	return &Batch{
		ID:         id,
		TenantID:   tenantID,
		ClinicID:   clinicID,
		OperatorID: operatorID,
		Number:     number,
		Status:     BatchStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddGuide agrega una guía FINALIZED de la misma operadora y tenant.
func (b *Batch) AddGuide(g *Guide, now time.Time) error {
	if b.Status != BatchStatusDraft {
		return domain.InvalidStatef("lote %s en estado %s: no admite guías", b.ID, b.Status)
	}
	if g.TenantID != b.TenantID {
		return domain.Validationf("guía %s pertenece a otro tenant", g.ID)
	}
	if g.OperatorID != b.OperatorID {
		return domain.Validationf("guía %s es de la operadora %s, el lote es de %s", g.ID, g.OperatorID, b.OperatorID)
	}
	if b.HasGuide(g.ID) {
		return domain.InvalidStatef("guía %s ya está en el lote %s", g.ID, b.ID)
	}
	if err := g.AttachToBatch(b.ID, now); err != nil {
		return err
	}
	b.GuideIDs = append(b.GuideIDs, g.ID)
	b.TotalAmount = b.TotalAmount.Add(g.TotalAmount).Round(2)
	b.UpdatedAt = now
	return nil
}

// RemoveGuide retira una guía del lote. Solo en DRAFT.
func (b *Batch) RemoveGuide(g *Guide, now time.Time) error {
	if b.Status != BatchStatusDraft {
		return domain.InvalidStatef("lote %s en estado %s: no se pueden retirar guías", b.ID, b.Status)
	}
	idx := -1
	for i, id := range b.GuideIDs {
		if id == g.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Validationf("guía %s no pertenece al lote %s", g.ID, b.ID)
	}
	if err := g.DetachFromBatch(now); err != nil {
		return err
	}
	b.GuideIDs = append(b.GuideIDs[:idx], b.GuideIDs[idx+1:]...)
	b.TotalAmount = b.TotalAmount.Sub(g.TotalAmount).Round(2)
	b.UpdatedAt = now
	return nil
}

// HasGuide indica si la guía es miembro del lote.
func (b *Batch) HasGuide(guideID string) bool {
	for _, id := range b.GuideIDs {
		if id == guideID {
			return true
		}
	}
	return false
}

// SetPayload guarda el XML validado: DRAFT → READY_TO_SEND.
func (b *Batch) SetPayload(xmlPayload, checksum string, now time.Time) error {
	if b.Status != BatchStatusDraft {
		return domain.InvalidStatef("lote %s en estado %s: el XML solo se genera en DRAFT", b.ID, b.Status)
	}
	if len(b.GuideIDs) == 0 {
		return domain.Validationf("lote %s sin guías", b.ID)
	}
	if strings.TrimSpace(xmlPayload) == "" || checksum == "" {
		return domain.Validationf("XML o checksum vacío para el lote %s", b.ID)
	}
	b.XMLPayload = xmlPayload
	b.Checksum = checksum
	b.Status = BatchStatusReadyToSend
	b.UpdatedAt = now
	return nil
}

// RevertToDraft READY_TO_SEND → DRAFT, descartando el XML (para regenerarlo).
func (b *Batch) RevertToDraft(now time.Time) error {
	if b.Status != BatchStatusReadyToSend {
		return domain.InvalidStatef("lote %s en estado %s: solo se revierte desde READY_TO_SEND", b.ID, b.Status)
	}
	b.XMLPayload = ""
	b.Checksum = ""
	b.Status = BatchStatusDraft
	b.UpdatedAt = now
	return nil
}

// MarkSubmitted READY_TO_SEND → SUBMITTED con el protocolo devuelto por la operadora.
func (b *Batch) MarkSubmitted(protocolNumber string, at time.Time) error {
	if b.Status != BatchStatusReadyToSend {
		return domain.InvalidStatef("lote %s en estado %s: solo se envía desde READY_TO_SEND", b.ID, b.Status)
	}
	if strings.TrimSpace(protocolNumber) == "" {
		return domain.Validationf("protocolo vacío para el lote %s", b.ID)
	}
	b.ProtocolNumber = protocolNumber
	b.Status = BatchStatusSubmitted
	b.SubmittedAt = &at
	b.UpdatedAt = at
	return nil
}

// MarkResponseProcessed SUBMITTED → RESPONSE_PROCESSED con los totales consolidados.
func (b *Batch) MarkResponseProcessed(approved, rejected decimal.Decimal, at time.Time) error {
	if b.Status != BatchStatusSubmitted {
		return domain.InvalidStatef("lote %s en estado %s: la respuesta solo se procesa en SUBMITTED", b.ID, b.Status)
	}
	b.ApprovedAmount = approved.Round(2)
	b.RejectedAmount = rejected.Round(2)
	b.Status = BatchStatusResponseProcessed
	b.RespondedAt = &at
	b.UpdatedAt = at
	return nil
}

// MarkPaid RESPONSE_PROCESSED → PAID. La verificación de guías la hace el caso de uso.
func (b *Batch) MarkPaid(at time.Time) error {
	if b.Status != BatchStatusResponseProcessed {
		return domain.InvalidStatef("lote %s en estado %s: solo se paga desde RESPONSE_PROCESSED", b.ID, b.Status)
	}
	b.Status = BatchStatusPaid
	b.PaidAt = &at
	b.UpdatedAt = at
	return nil
}

// Reject READY_TO_SEND → REJECTED (rechazo manual antes del envío).
func (b *Batch) Reject(reason string, now time.Time) error {
	if b.Status != BatchStatusReadyToSend {
		return domain.InvalidStatef("lote %s en estado %s: solo se rechaza desde READY_TO_SEND", b.ID, b.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Validationf("motivo de rechazo obligatorio")
	}
	b.RejectReason = reason
	b.Status = BatchStatusRejected
	b.UpdatedAt = now
	return nil
}

// ApplyRecovery suma lo recuperado por un recurso aprobado.
func (b *Batch) ApplyRecovery(amount decimal.Decimal, now time.Time) error {
	if b.Status != BatchStatusResponseProcessed && b.Status != BatchStatusPaid {
		return domain.InvalidStatef("lote %s en estado %s: no admite recuperación de glosa", b.ID, b.Status)
	}
	if amount.IsNegative() {
		return domain.Validationf("monto recuperado negativo")
	}
	b.RecoveredAmount = b.RecoveredAmount.Add(amount).Round(2)
	b.UpdatedAt = now
	return nil
}

// Submitted indica si el lote ya tiene protocolo (envío idempotente).
func (b *Batch) Submitted() bool {
	return b.ProtocolNumber != ""
}

package claims

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/internal/infrastructure/webservice"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// BatchUseCase orquesta el lote:
//
//	Create → AddGuide* → GenerateXML → Submit → ProcessResponse → MarkPaid
//
// Toda transición del lote se serializa con el Locker (clave batch:<id>); el control
// optimista de versión de los repositorios cubre además las escrituras desde GuideUseCase.
type BatchUseCase struct {
	d        Deps
	detector *GlosaDetector
	log      *logger.Logger
}

// ProcessResult resultado de ProcessResponse.
type ProcessResult struct {
	Batch   *entity.Batch
	Glosas  []*entity.Glosa
	Skipped []SkippedEntry
}

// NewBatchUseCase construye el caso de uso.
func NewBatchUseCase(d Deps, detector *GlosaDetector) *BatchUseCase {
	d = d.withDefaults()
	if detector == nil {
		detector = NewGlosaDetector(d.Codec, d.Clock, d.Metrics, d.Log)
	}
	return &BatchUseCase{d: d, detector: detector, log: d.Log.Component("batch")}
}

func batchLockKey(id string) string { return "batch:" + id }

// Create crea un lote DRAFT con número del consecutivo del tenant.
func (uc *BatchUseCase) Create(ctx context.Context, tenantID string, in dto.CreateBatchRequest) (*entity.Batch, error) {
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	ws, err := uc.d.Operators.GetWebservice(ctx, in.OperatorID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, domain.Validationf("operadora %s sin webservice configurado", in.OperatorID)
	}
	seq, err := uc.d.Sequences.Next(ctx, tenantID, sequenceBatch)
	if err != nil {
		return nil, err
	}
	b := entity.NewBatch(uuid.NewString(), tenantID, in.ClinicID, in.OperatorID, strconv.FormatInt(seq, 10), uc.d.Clock.Now())
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		return repos.Batches.Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	uc.transition(b)
	return b, nil
}

// Get devuelve el lote o ErrNotFound.
func (uc *BatchUseCase) Get(ctx context.Context, tenantID, batchID string) (*entity.Batch, error) {
	return loadBatch(ctx, uc.d.Repos.Batches, tenantID, batchID)
}

// List lotes del tenant; status vacío = todos.
func (uc *BatchUseCase) List(ctx context.Context, tenantID, status string) ([]*entity.Batch, error) {
	return uc.d.Repos.Batches.ListByStatus(ctx, tenantID, status)
}

// AddGuide agrega una guía FINALIZED al lote DRAFT.
func (uc *BatchUseCase) AddGuide(ctx context.Context, tenantID, batchID, guideID string) (*entity.Batch, error) {
	return uc.withGuide(ctx, tenantID, batchID, guideID, func(b *entity.Batch, g *entity.Guide) error {
		return b.AddGuide(g, uc.d.Clock.Now())
	})
}

// RemoveGuide retira una guía del lote DRAFT.
func (uc *BatchUseCase) RemoveGuide(ctx context.Context, tenantID, batchID, guideID string) (*entity.Batch, error) {
	return uc.withGuide(ctx, tenantID, batchID, guideID, func(b *entity.Batch, g *entity.Guide) error {
		return b.RemoveGuide(g, uc.d.Clock.Now())
	})
}

func (uc *BatchUseCase) withGuide(ctx context.Context, tenantID, batchID, guideID string, fn func(*entity.Batch, *entity.Guide) error) (*entity.Batch, error) {
	unlock, err := uc.d.lock(ctx, batchLockKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *entity.Batch
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		b, err := loadBatch(ctx, repos.Batches, tenantID, batchID)
		if err != nil {
			return err
		}
		g, err := loadGuide(ctx, repos.Guides, tenantID, guideID)
		if err != nil {
			return err
		}
		if err := fn(b, g); err != nil {
			return err
		}
		if err := repos.Guides.Update(ctx, g); err != nil {
			return err
		}
		if err := repos.Batches.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// GenerateXML renderiza, valida y (si la operadora lo exige) firma el lote: DRAFT → READY_TO_SEND.
// Un ErrProtocol deja el lote en DRAFT.
func (uc *BatchUseCase) GenerateXML(ctx context.Context, tenantID, batchID string) (*entity.Batch, error) {
	unlock, err := uc.d.lock(ctx, batchLockKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := uc.Get(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != entity.BatchStatusDraft {
		return nil, domain.InvalidStatef("lote %s en estado %s: el XML solo se genera en DRAFT", b.ID, b.Status)
	}
	if len(b.GuideIDs) == 0 {
		return nil, domain.Validationf("lote %s sin guías", b.ID)
	}
	op, err := loadOperator(ctx, uc.d.Operators, b.OperatorID)
	if err != nil {
		return nil, err
	}
	guides, err := uc.orderedGuides(ctx, b)
	if err != nil {
		return nil, err
	}

	payload, checksum, err := uc.d.Codec.RenderBatch(&tiss.BatchBuildContext{
		Batch:    b,
		Guides:   guides,
		Operator: op,
		IssuedAt: uc.d.Clock.Now(),
	})
	if err != nil {
		uc.log.Warn().Err(err).Str("batch_id", b.ID).Msg("XML del lote inválido")
		return nil, err
	}

	var out *entity.Batch
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		current, err := loadBatch(ctx, repos.Batches, tenantID, batchID)
		if err != nil {
			return err
		}
		if current.Version != b.Version {
			return fmt.Errorf("%w: lote %s cambió mientras se generaba el XML", domain.ErrConcurrentUpdate, b.ID)
		}
		if err := current.SetPayload(string(payload), checksum, uc.d.Clock.Now()); err != nil {
			return err
		}
		if err := repos.Batches.Update(ctx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.transition(out)
	return out, nil
}

// RevertToDraft descarta el XML: READY_TO_SEND → DRAFT.
func (uc *BatchUseCase) RevertToDraft(ctx context.Context, tenantID, batchID string) (*entity.Batch, error) {
	return uc.mutate(ctx, tenantID, batchID, func(_ repository.Set, b *entity.Batch) error {
		return b.RevertToDraft(uc.d.Clock.Now())
	})
}

// Submit envía el lote a la operadora. Es idempotente: un lote con protocolo devuelve el
// resultado guardado sin llamar al webservice. Si el envío falla (reintentos agotados o
// cancelación) el lote sigue READY_TO_SEND y el error se devuelve al llamador.
func (uc *BatchUseCase) Submit(ctx context.Context, tenantID, batchID string) (*entity.Batch, error) {
	unlock, err := uc.d.lock(ctx, batchLockKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := uc.Get(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if b.Submitted() {
		uc.log.Debug().Str("batch_id", b.ID).Str("protocol", b.ProtocolNumber).Msg("lote ya enviado")
		return b, nil
	}
	if b.Status != entity.BatchStatusReadyToSend {
		return nil, domain.InvalidStatef("lote %s en estado %s: solo se envía desde READY_TO_SEND", b.ID, b.Status)
	}

	res, err := uc.d.Gateway.Send(ctx, b.OperatorID, []byte(b.XMLPayload))
	if err != nil {
		uc.log.Error().Err(err).Str("batch_id", b.ID).Str("operator_id", b.OperatorID).Msg("envío del lote fallido")
		return nil, err
	}

	// La operadora ya aceptó el lote: el protocolo se persiste aunque el llamador cancele.
	persistCtx := context.WithoutCancel(ctx)
	var out *entity.Batch
	err = uc.d.Tx.Run(persistCtx, func(repos repository.Set) error {
		current, err := loadBatch(persistCtx, repos.Batches, tenantID, batchID)
		if err != nil {
			return err
		}
		now := uc.d.Clock.Now()
		if err := current.MarkSubmitted(res.ProtocolNumber, now); err != nil {
			return err
		}
		guides, err := repos.Guides.ListByBatch(persistCtx, tenantID, batchID)
		if err != nil {
			return err
		}
		for _, g := range guides {
			if err := g.MarkSubmitted(now); err != nil {
				return err
			}
			if err := repos.Guides.Update(persistCtx, g); err != nil {
				return err
			}
		}
		if err := repos.Batches.Update(persistCtx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		uc.log.Error().Err(err).Str("batch_id", b.ID).Str("protocol", res.ProtocolNumber).
			Msg("protocolo recibido pero no persistido")
		return nil, err
	}
	uc.log.Info().Str("batch_id", out.ID).Str("protocol", out.ProtocolNumber).Msg("lote enviado")
	uc.transition(out)
	return out, nil
}

// ProcessResponse aplica el demonstrativo de la operadora: crea las glosas, fija el resultado
// de cada guía y pasa el lote a RESPONSE_PROCESSED. Un lote ya procesado falla con
// ErrInvalidState sin crear glosas.
func (uc *BatchUseCase) ProcessResponse(ctx context.Context, tenantID, batchID string, responseXML []byte) (*ProcessResult, error) {
	unlock, err := uc.d.lock(ctx, batchLockKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := uc.Get(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != entity.BatchStatusSubmitted {
		return nil, domain.InvalidStatef("lote %s en estado %s: la respuesta solo se procesa en SUBMITTED", b.ID, b.Status)
	}
	op, err := loadOperator(ctx, uc.d.Operators, b.OperatorID)
	if err != nil {
		return nil, err
	}
	guides, err := uc.d.Repos.Guides.ListByBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	extraction, err := uc.detector.Extract(ctx, b, guides, op, responseXML)
	if err != nil {
		return nil, err
	}

	var out *entity.Batch
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		current, err := loadBatch(ctx, repos.Batches, tenantID, batchID)
		if err != nil {
			return err
		}
		if current.Status != entity.BatchStatusSubmitted {
			return domain.InvalidStatef("lote %s en estado %s: la respuesta solo se procesa en SUBMITTED", current.ID, current.Status)
		}
		now := uc.d.Clock.Now()
		for _, gl := range extraction.Glosas {
			if err := repos.Glosas.Create(ctx, gl); err != nil {
				return err
			}
		}
		approved, rejected := decimal.Zero, decimal.Zero
		for _, o := range extraction.Outcomes {
			g, err := loadGuide(ctx, repos.Guides, tenantID, o.GuideID)
			if err != nil {
				return err
			}
			if err := g.ApplyOutcome(o.Approved, o.Rejected, now); err != nil {
				return err
			}
			if err := repos.Guides.Update(ctx, g); err != nil {
				return err
			}
			approved = approved.Add(o.Approved)
			rejected = rejected.Add(o.Rejected)
		}
		if err := current.MarkResponseProcessed(approved, rejected, now); err != nil {
			return err
		}
		if err := repos.Batches.Update(ctx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, gl := range extraction.Glosas {
		uc.d.Metrics.IncGlosaDetected(gl.Classification)
		uc.d.notify(ctx, entity.Notification{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Kind:      entity.NotificationGlosaCreated,
			EntityID:  gl.ID,
			Message:   fmt.Sprintf("Glosa %s de %s en la guía %s", gl.Code, gl.RejectedAmount.StringFixed(2), gl.GuideNumber),
			CreatedAt: uc.d.Clock.Now(),
			Payload: map[string]string{
				"batch_id":        gl.BatchID,
				"guide_id":        gl.GuideID,
				"classification":  gl.Classification,
				"appeal_deadline": gl.AppealDeadline.Format("2006-01-02"),
			},
		})
	}
	uc.log.Info().
		Str("batch_id", out.ID).
		Str("approved", out.ApprovedAmount.StringFixed(2)).
		Str("rejected", out.RejectedAmount.StringFixed(2)).
		Int("glosas", len(extraction.Glosas)).
		Msg("respuesta del lote procesada")
	uc.transition(out)
	return &ProcessResult{Batch: out, Glosas: extraction.Glosas, Skipped: extraction.Skipped}, nil
}

// MarkPaid RESPONSE_PROCESSED → PAID. Todas las guías deben estar APPROVED, PARTIALLY_APPROVED,
// PAID o CANCELLED; las aprobadas pasan a PAID.
func (uc *BatchUseCase) MarkPaid(ctx context.Context, tenantID, batchID string) (*entity.Batch, error) {
	out, err := uc.mutate(ctx, tenantID, batchID, func(repos repository.Set, b *entity.Batch) error {
		if b.Status != entity.BatchStatusResponseProcessed {
			return domain.InvalidStatef("lote %s en estado %s: solo se paga desde RESPONSE_PROCESSED", b.ID, b.Status)
		}
		guides, err := repos.Guides.ListByBatch(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		now := uc.d.Clock.Now()
		for _, g := range guides {
			switch g.Status {
			case entity.GuideStatusApproved, entity.GuideStatusPartiallyApproved:
				if err := g.MarkPaid(now); err != nil {
					return err
				}
				if err := repos.Guides.Update(ctx, g); err != nil {
					return err
				}
			case entity.GuideStatusPaid, entity.GuideStatusCancelled:
			default:
				return domain.InvalidStatef("guía %s en estado %s: el lote %s no se puede pagar", g.Number, g.Status, b.ID)
			}
		}
		return b.MarkPaid(now)
	})
	if err != nil {
		return nil, err
	}
	uc.transition(out)
	return out, nil
}

// Reject rechazo manual antes del envío: READY_TO_SEND → REJECTED. Las guías quedan libres
// para otro lote; GuideIDs se conserva como historial.
func (uc *BatchUseCase) Reject(ctx context.Context, tenantID, batchID, reason string) (*entity.Batch, error) {
	out, err := uc.mutate(ctx, tenantID, batchID, func(repos repository.Set, b *entity.Batch) error {
		now := uc.d.Clock.Now()
		if err := b.Reject(reason, now); err != nil {
			return err
		}
		guides, err := repos.Guides.ListByBatch(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		for _, g := range guides {
			if err := g.DetachFromBatch(now); err != nil {
				return err
			}
			if err := repos.Guides.Update(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("batch_id", out.ID).Str("reason", reason).Msg("lote rechazado")
	uc.transition(out)
	return out, nil
}

// QueryProtocol consulta la situación del protocolo del lote en la operadora.
func (uc *BatchUseCase) QueryProtocol(ctx context.Context, tenantID, batchID string) (*webservice.ProtocolStatus, error) {
	b, err := uc.Get(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if !b.Submitted() {
		return nil, domain.InvalidStatef("lote %s en estado %s: sin protocolo", b.ID, b.Status)
	}
	return uc.d.Gateway.Query(ctx, b.OperatorID, b.ProtocolNumber)
}

// mutate aplica fn al lote en una transacción, con el lock del lote tomado: no se intercala
// con un Submit o ProcessResponse en curso.
func (uc *BatchUseCase) mutate(ctx context.Context, tenantID, batchID string, fn func(repository.Set, *entity.Batch) error) (*entity.Batch, error) {
	unlock, err := uc.d.lock(ctx, batchLockKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *entity.Batch
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		b, err := loadBatch(ctx, repos.Batches, tenantID, batchID)
		if err != nil {
			return err
		}
		if err := fn(repos, b); err != nil {
			return err
		}
		if err := repos.Batches.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// orderedGuides guías del lote en el orden de GuideIDs.
func (uc *BatchUseCase) orderedGuides(ctx context.Context, b *entity.Batch) ([]*entity.Guide, error) {
	list, err := uc.d.Repos.Guides.ListByBatch(ctx, b.TenantID, b.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Guide, len(list))
	for _, g := range list {
		byID[g.ID] = g
	}
	out := make([]*entity.Guide, 0, len(b.GuideIDs))
	for _, id := range b.GuideIDs {
		g, ok := byID[id]
		if !ok {
			return nil, domain.InvalidStatef("guía %s del lote %s no está vinculada", id, b.ID)
		}
		out = append(out, g)
	}
	return out, nil
}

func (uc *BatchUseCase) transition(b *entity.Batch) {
	uc.d.Metrics.IncBatchTransition(b.Status)
	uc.log.Debug().Str("batch_id", b.ID).Str("status", b.Status).Int("version", b.Version).Msg("transición de lote")
}

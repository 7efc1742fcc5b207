package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// RecursoUseCase presentación de recursos de glosa y registro de la respuesta de la operadora.
type RecursoUseCase struct {
	d   Deps
	log *logger.Logger
}

// NewRecursoUseCase construye el caso de uso.
func NewRecursoUseCase(d Deps) *RecursoUseCase {
	d = d.withDefaults()
	return &RecursoUseCase{d: d, log: d.Log.Component("recurso")}
}

func glosaLockKey(id string) string { return "glosa:" + id }

// Get devuelve el recurso o ErrNotFound.
func (uc *RecursoUseCase) Get(ctx context.Context, tenantID, recursoID string) (*entity.Recurso, error) {
	return loadRecurso(ctx, uc.d.Repos.Recursos, tenantID, recursoID)
}

// ListByGlosa historial de recursos de una glosa.
func (uc *RecursoUseCase) ListByGlosa(ctx context.Context, tenantID, glosaID string) ([]*entity.Recurso, error) {
	if _, err := loadGlosa(ctx, uc.d.Repos.Glosas, tenantID, glosaID); err != nil {
		return nil, err
	}
	return uc.d.Repos.Recursos.ListByGlosa(ctx, tenantID, glosaID)
}

// File presenta un recurso contra la glosa. Se serializa por glosa: un segundo File concurrente
// encuentra el recurso abierto y falla con ErrInvalidState. Si la transmisión falla no se
// persiste nada y los anexos subidos se eliminan.
func (uc *RecursoUseCase) File(ctx context.Context, tenantID, glosaID string, in dto.FileRecursoRequest) (*entity.Recurso, error) {
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	unlock, err := uc.d.lock(ctx, glosaLockKey(glosaID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	gl, err := loadGlosa(ctx, uc.d.Repos.Glosas, tenantID, glosaID)
	if err != nil {
		return nil, err
	}
	if gl.Terminal() {
		return nil, domain.InvalidStatef("glosa %s en estado %s: no admite recurso", gl.ID, gl.Status)
	}
	if gl.AppealOpen() {
		return nil, domain.InvalidStatef("glosa %s ya tiene un recurso abierto", gl.ID)
	}
	existing, err := uc.d.Repos.Recursos.ListByGlosa(ctx, tenantID, glosaID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.Open() {
			return nil, domain.InvalidStatef("glosa %s ya tiene el recurso abierto %s", gl.ID, r.ID)
		}
	}
	b, err := loadBatch(ctx, uc.d.Repos.Batches, tenantID, gl.BatchID)
	if err != nil {
		return nil, err
	}
	op, err := loadOperator(ctx, uc.d.Operators, b.OperatorID)
	if err != nil {
		return nil, err
	}

	refs, err := uc.upload(ctx, tenantID, in.Attachments)
	if err != nil {
		return nil, err
	}
	now := uc.d.Clock.Now()
	rec, err := entity.NewRecurso(uuid.NewString(), tenantID, glosaID, in.Justification, refs, now)
	if err != nil {
		uc.discard(ctx, refs)
		return nil, err
	}

	payload, _, err := uc.d.Codec.RenderAppeal(&tiss.AppealBuildContext{
		Recurso:  rec,
		Glosa:    gl,
		Batch:    b,
		Operator: op,
		IssuedAt: now,
	})
	if err != nil {
		uc.discard(ctx, refs)
		return nil, err
	}
	res, err := uc.d.Gateway.SubmitAppeal(ctx, b.OperatorID, payload)
	if err != nil {
		uc.log.Error().Err(err).Str("glosa_id", gl.ID).Msg("envío del recurso fallido")
		uc.discard(context.WithoutCancel(ctx), refs)
		return nil, err
	}
	rec.OperatorProtocol = res.ProtocolNumber

	persistCtx := context.WithoutCancel(ctx)
	err = uc.d.Tx.Run(persistCtx, func(repos repository.Set) error {
		current, err := loadGlosa(persistCtx, repos.Glosas, tenantID, glosaID)
		if err != nil {
			return err
		}
		if current.Status == entity.GlosaStatusPending {
			if err := current.MarkUnderReview(now); err != nil {
				return err
			}
		}
		if err := current.FileAppeal(in.Justification, now); err != nil {
			return err
		}
		if err := repos.Glosas.Update(persistCtx, current); err != nil {
			return err
		}
		return repos.Recursos.Create(persistCtx, rec)
	})
	if err != nil {
		uc.log.Error().Err(err).Str("glosa_id", gl.ID).Str("protocol", rec.OperatorProtocol).
			Msg("recurso recibido por la operadora pero no persistido")
		return nil, err
	}
	uc.log.Info().Str("recurso_id", rec.ID).Str("glosa_id", gl.ID).Str("protocol", rec.OperatorProtocol).Msg("recurso presentado")
	return rec, nil
}

// RegisterResponse registra la respuesta de la operadora una única vez.
// APPROVED y PARTIALLY_APPROVED recuperan el monto en la glosa y en el lote; DENIED acepta la
// glosa con la justificación de la operadora tal cual.
func (uc *RecursoUseCase) RegisterResponse(ctx context.Context, tenantID, recursoID string, in dto.RecursoResponseRequest) (*entity.Recurso, error) {
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	pending, err := loadRecurso(ctx, uc.d.Repos.Recursos, tenantID, recursoID)
	if err != nil {
		return nil, err
	}
	unlock, err := uc.d.lock(ctx, glosaLockKey(pending.GlosaID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out   *entity.Recurso
		glosa *entity.Glosa
	)
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		rec, err := loadRecurso(ctx, repos.Recursos, tenantID, recursoID)
		if err != nil {
			return err
		}
		gl, err := loadGlosa(ctx, repos.Glosas, tenantID, rec.GlosaID)
		if err != nil {
			return err
		}
		now := uc.d.Clock.Now()
		amount, err := rec.RegisterResponse(in.Result, in.OperatorJustification, in.ApprovedAmount, gl.RejectedAmount, now)
		if err != nil {
			return err
		}
		if err := gl.ResolveAppeal(in.Result, amount, in.OperatorJustification, now); err != nil {
			return err
		}
		if amount.IsPositive() {
			b, err := loadBatch(ctx, repos.Batches, tenantID, gl.BatchID)
			if err != nil {
				return err
			}
			if err := b.ApplyRecovery(amount, now); err != nil {
				return err
			}
			if err := repos.Batches.Update(ctx, b); err != nil {
				return err
			}
		}
		if err := repos.Glosas.Update(ctx, gl); err != nil {
			return err
		}
		if err := repos.Recursos.Update(ctx, rec); err != nil {
			return err
		}
		out, glosa = rec, gl
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.d.notify(ctx, entity.Notification{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      entity.NotificationAppealResolved,
		EntityID:  out.ID,
		Message:   fmt.Sprintf("Recurso de la glosa %s resuelto: %s", glosa.Code, in.Result),
		CreatedAt: uc.d.Clock.Now(),
		Payload: map[string]string{
			"glosa_id":         glosa.ID,
			"result":           in.Result,
			"recovered_amount": out.ApprovedAmount.StringFixed(2),
		},
	})
	uc.log.Info().Str("recurso_id", out.ID).Str("result", in.Result).Msg("respuesta del recurso registrada")
	return out, nil
}

func (uc *RecursoUseCase) upload(ctx context.Context, tenantID string, attachments []dto.AttachmentRequest) ([]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if uc.d.Attachments == nil {
		return nil, domain.Validationf("almacenamiento de anexos no configurado")
	}
	refs := make([]string, 0, len(attachments))
	for _, a := range attachments {
		ref, err := uc.d.Attachments.Put(ctx, tenantID, a.Name, a.ContentType, a.Content)
		if err != nil {
			uc.discard(context.WithoutCancel(ctx), refs)
			return nil, fmt.Errorf("subir anexo %s: %w", a.Name, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (uc *RecursoUseCase) discard(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := uc.d.Attachments.Delete(ctx, ref); err != nil {
			uc.log.Warn().Err(err).Str("ref", ref).Msg("anexo huérfano")
		}
	}
}

func loadRecurso(ctx context.Context, repo repository.RecursoRepository, tenantID, id string) (*entity.Recurso, error) {
	r, err := repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: recurso %s", domain.ErrNotFound, id)
	}
	return r, nil
}

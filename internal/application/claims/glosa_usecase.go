package claims

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// GlosaUseCase consulta y decisiones del prestador sobre glosas sin recurso.
type GlosaUseCase struct {
	d   Deps
	log *logger.Logger
}

// NewGlosaUseCase construye el caso de uso.
func NewGlosaUseCase(d Deps) *GlosaUseCase {
	d = d.withDefaults()
	return &GlosaUseCase{d: d, log: d.Log.Component("glosa")}
}

// Get devuelve la glosa o ErrNotFound.
func (uc *GlosaUseCase) Get(ctx context.Context, tenantID, glosaID string) (*entity.Glosa, error) {
	return loadGlosa(ctx, uc.d.Repos.Glosas, tenantID, glosaID)
}

// ListByGuide glosas de una guía.
func (uc *GlosaUseCase) ListByGuide(ctx context.Context, tenantID, guideID string) ([]*entity.Glosa, error) {
	if _, err := loadGuide(ctx, uc.d.Repos.Guides, tenantID, guideID); err != nil {
		return nil, err
	}
	return uc.d.Repos.Glosas.ListByGuide(ctx, tenantID, guideID)
}

// ListByBatch glosas de un lote.
func (uc *GlosaUseCase) ListByBatch(ctx context.Context, tenantID, batchID string) ([]*entity.Glosa, error) {
	if _, err := loadBatch(ctx, uc.d.Repos.Batches, tenantID, batchID); err != nil {
		return nil, err
	}
	return uc.d.Repos.Glosas.ListByBatch(ctx, tenantID, batchID)
}

// Review PENDING → UNDER_REVIEW.
func (uc *GlosaUseCase) Review(ctx context.Context, tenantID, glosaID string) (*entity.Glosa, error) {
	return uc.mutate(ctx, tenantID, glosaID, func(g *entity.Glosa) error {
		return g.MarkUnderReview(uc.d.Clock.Now())
	})
}

// Accept el prestador acepta la glosa sin recurso: PENDING | UNDER_REVIEW → ACCEPTED.
func (uc *GlosaUseCase) Accept(ctx context.Context, tenantID, glosaID string) (*entity.Glosa, error) {
	g, err := uc.mutate(ctx, tenantID, glosaID, func(g *entity.Glosa) error {
		return g.Accept(uc.d.Clock.Now())
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("glosa_id", g.ID).Str("code", g.Code).Msg("glosa aceptada sin recurso")
	return g, nil
}

// mutate comparte el lock de la glosa con RecursoUseCase.File, que lo retiene mientras el
// recurso viaja a la operadora.
func (uc *GlosaUseCase) mutate(ctx context.Context, tenantID, glosaID string, fn func(*entity.Glosa) error) (*entity.Glosa, error) {
	unlock, err := uc.d.lock(ctx, glosaLockKey(glosaID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *entity.Glosa
	err = uc.d.Tx.Run(ctx, func(repos repository.Set) error {
		g, err := loadGlosa(ctx, repos.Glosas, tenantID, glosaID)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		if err := repos.Glosas.Update(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

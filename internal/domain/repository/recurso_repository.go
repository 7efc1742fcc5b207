package repository

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// RecursoRepository define el puerto de persistencia para recursos de glosa.
type RecursoRepository interface {
	Create(ctx context.Context, recurso *entity.Recurso) error
	Update(ctx context.Context, recurso *entity.Recurso) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Recurso, error)
	ListByGlosa(ctx context.Context, tenantID, glosaID string) ([]*entity.Recurso, error)
}

package repository

import (
	"context"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// GlosaRepository define el puerto de persistencia para glosas. No hay Delete:
// las glosas solo cambian de estado (trazabilidad).
type GlosaRepository interface {
	Create(ctx context.Context, glosa *entity.Glosa) error
	Update(ctx context.Context, glosa *entity.Glosa) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Glosa, error)
	ListByGuide(ctx context.Context, tenantID, guideID string) ([]*entity.Glosa, error)
	ListByBatch(ctx context.Context, tenantID, batchID string) ([]*entity.Glosa, error)
	// ListDeadlineBefore devuelve glosas PENDING o UNDER_REVIEW con plazo de recurso <= limit.
	ListDeadlineBefore(ctx context.Context, tenantID string, limit time.Time) ([]*entity.Glosa, error)
	// ListOpenTenants devuelve los tenants con glosas PENDING o UNDER_REVIEW.
	ListOpenTenants(ctx context.Context) ([]string, error)
}

package repository

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// GuideRepository define el puerto de persistencia para Guide y sus procedimientos.
// GetByID y GetByNumber devuelven (nil, nil) si no existe.
type GuideRepository interface {
	Create(ctx context.Context, guide *entity.Guide) error
	// Update persiste la guía si guide.Version coincide con la versión almacenada e
	// incrementa guide.Version; si no coincide devuelve domain.ErrConcurrentUpdate.
	Update(ctx context.Context, guide *entity.Guide) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Guide, error)
	GetByNumber(ctx context.Context, tenantID, number string) (*entity.Guide, error)
	ListByBatch(ctx context.Context, tenantID, batchID string) ([]*entity.Guide, error)
}

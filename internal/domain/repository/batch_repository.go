package repository

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// BatchRepository define el puerto de persistencia para lotes de guías.
// GetByID devuelve (nil, nil) si no existe.
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.Batch) error
	// Update aplica control optimista por Version (ver GuideRepository.Update).
	Update(ctx context.Context, batch *entity.Batch) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Batch, error)
	ListByStatus(ctx context.Context, tenantID, status string) ([]*entity.Batch, error)
}

package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo implementación en memoria de BatchRepository.
type BatchRepo struct {
	s *Store
}

// NewBatchRepository construye el repositorio sobre el almacén.
func NewBatchRepository(s *Store) *BatchRepo {
	return &BatchRepo{s: s}
}

func (r *BatchRepo) Create(_ context.Context, b *entity.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; ok {
		return duplicated("lote", b.ID)
	}
	b.Version = 1
	r.s.batches[b.ID] = cloneBatch(b)
	return nil
}

func (r *BatchRepo) Update(_ context.Context, b *entity.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.batches[b.ID]
	if !ok || stored.TenantID != b.TenantID {
		return notFound("lote", b.ID)
	}
	if err := checkVersion("lote", b.ID, stored.Version, b.Version); err != nil {
		return err
	}
	b.Version++
	r.s.batches[b.ID] = cloneBatch(b)
	return nil
}

func (r *BatchRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, nil
	}
	return cloneBatch(b), nil
}

// ListByStatus lista lotes del tenant en status (vacío = todos), más recientes primero.
func (r *BatchRepo) ListByStatus(_ context.Context, tenantID, status string) ([]*entity.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Batch
	for _, b := range r.s.batches {
		if b.TenantID == tenantID && (status == "" || b.Status == status) {
			out = append(out, cloneBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.GuideRepository = (*GuideRepo)(nil)

// GuideRepo implementación en memoria de GuideRepository.
type GuideRepo struct {
	s *Store
}

// NewGuideRepository construye el repositorio sobre el almacén.
func NewGuideRepository(s *Store) *GuideRepo {
	return &GuideRepo{s: s}
}

// Create guarda una copia con Version 1.
func (r *GuideRepo) Create(_ context.Context, g *entity.Guide) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.guides[g.ID]; ok {
		return duplicated("guía", g.ID)
	}
	if g.Number != "" {
		for _, other := range r.s.guides {
			if other.TenantID == g.TenantID && other.Number == g.Number {
				return duplicated("número de guía", g.Number)
			}
		}
	}
	g.Version = 1
	r.s.guides[g.ID] = cloneGuide(g)
	return nil
}

// Update persiste si la versión coincide e incrementa g.Version.
func (r *GuideRepo) Update(_ context.Context, g *entity.Guide) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.guides[g.ID]
	if !ok || stored.TenantID != g.TenantID {
		return notFound("guía", g.ID)
	}
	if err := checkVersion("guía", g.ID, stored.Version, g.Version); err != nil {
		return err
	}
	if g.Number != "" && g.Number != stored.Number {
		for id, other := range r.s.guides {
			if id != g.ID && other.TenantID == g.TenantID && other.Number == g.Number {
				return duplicated("número de guía", g.Number)
			}
		}
	}
	g.Version++
	r.s.guides[g.ID] = cloneGuide(g)
	return nil
}

// GetByID devuelve (nil, nil) si no existe en el tenant.
func (r *GuideRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Guide, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.guides[id]
	if !ok || g.TenantID != tenantID {
		return nil, nil
	}
	return cloneGuide(g), nil
}

// GetByNumber busca por número de guía del prestador.
func (r *GuideRepo) GetByNumber(_ context.Context, tenantID, number string) (*entity.Guide, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, g := range r.s.guides {
		if g.TenantID == tenantID && g.Number == number {
			return cloneGuide(g), nil
		}
	}
	return nil, nil
}

// ListByBatch lista las guías del lote por número.
func (r *GuideRepo) ListByBatch(_ context.Context, tenantID, batchID string) ([]*entity.Guide, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Guide
	for _, g := range r.s.guides {
		if g.TenantID == tenantID && g.BatchID == batchID {
			out = append(out, cloneGuide(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

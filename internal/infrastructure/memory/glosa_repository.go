package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.GlosaRepository = (*GlosaRepo)(nil)

// GlosaRepo implementación en memoria de GlosaRepository.
type GlosaRepo struct {
	s *Store
}

// NewGlosaRepository construye el repositorio sobre el almacén.
func NewGlosaRepository(s *Store) *GlosaRepo {
	return &GlosaRepo{s: s}
}

func (r *GlosaRepo) Create(_ context.Context, g *entity.Glosa) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.glosas[g.ID]; ok {
		return duplicated("glosa", g.ID)
	}
	g.Version = 1
	r.s.glosas[g.ID] = cloneGlosa(g)
	return nil
}

func (r *GlosaRepo) Update(_ context.Context, g *entity.Glosa) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.glosas[g.ID]
	if !ok || stored.TenantID != g.TenantID {
		return notFound("glosa", g.ID)
	}
	if err := checkVersion("glosa", g.ID, stored.Version, g.Version); err != nil {
		return err
	}
	g.Version++
	r.s.glosas[g.ID] = cloneGlosa(g)
	return nil
}

func (r *GlosaRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Glosa, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.glosas[id]
	if !ok || g.TenantID != tenantID {
		return nil, nil
	}
	return cloneGlosa(g), nil
}

func (r *GlosaRepo) ListByGuide(_ context.Context, tenantID, guideID string) ([]*entity.Glosa, error) {
	return r.list(func(g *entity.Glosa) bool { return g.TenantID == tenantID && g.GuideID == guideID }), nil
}

func (r *GlosaRepo) ListByBatch(_ context.Context, tenantID, batchID string) ([]*entity.Glosa, error) {
	return r.list(func(g *entity.Glosa) bool { return g.TenantID == tenantID && g.BatchID == batchID }), nil
}

// ListDeadlineBefore glosas sin decisión cuyo plazo vence hasta limit.
func (r *GlosaRepo) ListDeadlineBefore(_ context.Context, tenantID string, limit time.Time) ([]*entity.Glosa, error) {
	return r.list(func(g *entity.Glosa) bool {
		if g.TenantID != tenantID || g.AppealDeadline.IsZero() || g.AppealDeadline.After(limit) {
			return false
		}
		return g.Status == entity.GlosaStatusPending || g.Status == entity.GlosaStatusUnderReview
	}), nil
}

// ListOpenTenants tenants con glosas PENDING o UNDER_REVIEW, ordenados.
func (r *GlosaRepo) ListOpenTenants(_ context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := []string{}
	for _, g := range r.s.glosas {
		if g.Status != entity.GlosaStatusPending && g.Status != entity.GlosaStatusUnderReview {
			continue
		}
		if _, ok := seen[g.TenantID]; ok {
			continue
		}
		seen[g.TenantID] = struct{}{}
		out = append(out, g.TenantID)
	}
	sort.Strings(out)
	return out, nil
}

func (r *GlosaRepo) list(match func(*entity.Glosa) bool) []*entity.Glosa {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Glosa
	for _, g := range r.s.glosas {
		if match(g) {
			out = append(out, cloneGlosa(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

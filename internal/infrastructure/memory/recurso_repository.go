package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.RecursoRepository = (*RecursoRepo)(nil)

// RecursoRepo implementación en memoria de RecursoRepository.
type RecursoRepo struct {
	s *Store
}

// NewRecursoRepository construye el repositorio sobre el almacén.
func NewRecursoRepository(s *Store) *RecursoRepo {
	return &RecursoRepo{s: s}
}

func (r *RecursoRepo) Create(_ context.Context, rec *entity.Recurso) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.recursos[rec.ID]; ok {
		return duplicated("recurso", rec.ID)
	}
	rec.Version = 1
	r.s.recursos[rec.ID] = cloneRecurso(rec)
	return nil
}

func (r *RecursoRepo) Update(_ context.Context, rec *entity.Recurso) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.recursos[rec.ID]
	if !ok || stored.TenantID != rec.TenantID {
		return notFound("recurso", rec.ID)
	}
	if err := checkVersion("recurso", rec.ID, stored.Version, rec.Version); err != nil {
		return err
	}
	rec.Version++
	r.s.recursos[rec.ID] = cloneRecurso(rec)
	return nil
}

func (r *RecursoRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Recurso, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.recursos[id]
	if !ok || rec.TenantID != tenantID {
		return nil, nil
	}
	return cloneRecurso(rec), nil
}

// ListByGlosa lista los recursos de la glosa en orden de envío.
func (r *RecursoRepo) ListByGlosa(_ context.Context, tenantID, glosaID string) ([]*entity.Recurso, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Recurso
	for _, rec := range r.s.recursos {
		if rec.TenantID == tenantID && rec.GlosaID == glosaID {
			out = append(out, cloneRecurso(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

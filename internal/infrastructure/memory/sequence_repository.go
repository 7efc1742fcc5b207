package memory

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo consecutivos por tenant y nombre.
type SequenceRepo struct {
	s *Store
}

// NewSequenceRepository construye el repositorio sobre el almacén.
func NewSequenceRepository(s *Store) *SequenceRepo {
	return &SequenceRepo{s: s}
}

// Next devuelve el siguiente valor (el primero es 1).
func (r *SequenceRepo) Next(ctx context.Context, tenantID, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := tenantID + "/" + name
	r.s.sequences[key]++
	return r.s.sequences[key], nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo consecutivos por (tenant, nombre) con upsert atómico.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador.
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next devuelve el siguiente valor; el primero es 1.
func (r *SequenceRepo) Next(ctx context.Context, tenantID, name string) (int64, error) {
	var value int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO claim_sequences (tenant_id, name, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, name) DO UPDATE SET value = claim_sequences.value + 1
		RETURNING value`, tenantID, name,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return value, nil
}

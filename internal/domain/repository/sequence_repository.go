package repository

import "context"

// SequenceRepository entrega consecutivos por tenant (números de guía y de lote).
type SequenceRepository interface {
	Next(ctx context.Context, tenantID, name string) (int64, error)
}

package repository

import "context"

// Set repositorios atados a una misma transacción.
type Set struct {
	Guides   GuideRepository
	Batches  BatchRepository
	Glosas   GlosaRepository
	Recursos RecursoRepository
}

// TxRunner ejecuta fn dentro de una transacción: si fn devuelve error no se persiste nada.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos Set) error) error
}

package repository

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// OperatorRepository expone la configuración de operadoras y planes (solo lectura).
// La administración de estas tablas pertenece a otro servicio.
type OperatorRepository interface {
	GetWebservice(ctx context.Context, operatorID string) (*entity.OperatorWebservice, error)
	GetPlan(ctx context.Context, planID string) (*entity.Plan, error)
}

package memory

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.OperatorRepository = (*OperatorRepo)(nil)

// OperatorRepo configuración de operadoras y planes en memoria.
type OperatorRepo struct {
	s *Store
}

// NewOperatorRepository construye el repositorio sobre el almacén.
func NewOperatorRepository(s *Store) *OperatorRepo {
	return &OperatorRepo{s: s}
}

// PutWebservice registra o reemplaza la configuración de una operadora.
func (r *OperatorRepo) PutWebservice(op entity.OperatorWebservice) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op.Headers = copyHeaders(op.Headers)
	r.s.operators[op.OperatorID] = &op
}

// PutPlan registra o reemplaza un plan.
func (r *OperatorRepo) PutPlan(p entity.Plan) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.plans[p.ID] = &p
}

func (r *OperatorRepo) GetWebservice(_ context.Context, operatorID string) (*entity.OperatorWebservice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	op, ok := r.s.operators[operatorID]
	if !ok {
		return nil, nil
	}
	cp := *op
	cp.Headers = copyHeaders(op.Headers)
	return &cp, nil
}

func (r *OperatorRepo) GetPlan(_ context.Context, planID string) (*entity.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.plans[planID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.ValidUntil = clonePtr(p.ValidUntil)
	return &cp, nil
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

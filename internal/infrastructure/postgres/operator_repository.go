package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.OperatorRepository = (*OperatorRepo)(nil)

// OperatorRepo lee operator_webservices y health_plans. Otro servicio administra esas tablas.
type OperatorRepo struct {
	q Querier
}

// NewOperatorRepository construye el adaptador. Pasar pool o tx (Querier).
func NewOperatorRepository(q Querier) *OperatorRepo {
	return &OperatorRepo{q: q}
}

func (r *OperatorRepo) GetWebservice(ctx context.Context, operatorID string) (*entity.OperatorWebservice, error) {
	query := `
		SELECT operator_id, name, ans_registry, provider_code, endpoint, username, encrypted_password,
		       timeout_ms, retry_attempts, backoff_base_ms, use_soap, sign_payload, charset, headers,
		       rate_limit, appeal_window_days, adapter
		FROM operator_webservices
		WHERE operator_id = $1`
	var (
		op                   entity.OperatorWebservice
		timeoutMs, backoffMs int64
		headers              []byte
	)
	err := r.q.QueryRow(ctx, query, operatorID).Scan(
		&op.OperatorID, &op.Name, &op.ANSRegistry, &op.ProviderCode, &op.Endpoint, &op.Username, &op.EncryptedPassword,
		&timeoutMs, &op.RetryAttempts, &backoffMs, &op.UseSOAP, &op.SignPayload, &op.Charset, &headers,
		&op.RateLimit, &op.AppealWindowDays, &op.Adapter,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operator webservice: %w", err)
	}
	op.Timeout = time.Duration(timeoutMs) * time.Millisecond
	op.BackoffBase = time.Duration(backoffMs) * time.Millisecond
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &op.Headers); err != nil {
			return nil, fmt.Errorf("headers de la operadora %s: %w", operatorID, err)
		}
	}
	return &op, nil
}

func (r *OperatorRepo) GetPlan(ctx context.Context, planID string) (*entity.Plan, error) {
	var p entity.Plan
	err := r.q.QueryRow(ctx, `
		SELECT id, operator_id, name, ans_code, valid_until, active
		FROM health_plans WHERE id = $1`, planID,
	).Scan(&p.ID, &p.OperatorID, &p.Name, &p.ANSCode, &p.ValidUntil, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &p, nil
}

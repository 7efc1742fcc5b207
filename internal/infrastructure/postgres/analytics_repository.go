package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.AnalyticsRepository = (*AnalyticsRepo)(nil)

// AnalyticsRepo consultas de solo lectura para la analítica de glosas.
type AnalyticsRepo struct {
	q Querier
}

// NewAnalyticsRepository construye el adaptador de analítica.
func NewAnalyticsRepository(q Querier) *AnalyticsRepo {
	return &AnalyticsRepo{q: q}
}

// nullTime traduce el instante cero a NULL (extremo sin límite).
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ListGuideFacts guías con submitted_at en [from, to).
func (r *AnalyticsRepo) ListGuideFacts(ctx context.Context, tenantID, operatorID string, from, to time.Time) ([]repository.GuideFact, error) {
	const query = `
	SELECT g.id, g.operator_id, g.status, g.total_amount, g.rejected_amount, g.submitted_at
	FROM guides g
	WHERE g.tenant_id = $1
	  AND g.submitted_at IS NOT NULL
	  AND ($2 = '' OR g.operator_id = $2)
	  AND ($3::timestamptz IS NULL OR g.submitted_at >= $3)
	  AND ($4::timestamptz IS NULL OR g.submitted_at <  $4)
	ORDER BY g.submitted_at`

	rows, err := r.q.Query(ctx, query, tenantID, operatorID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("guide facts: %w", err)
	}
	defer rows.Close()

	var out []repository.GuideFact
	for rows.Next() {
		var f repository.GuideFact
		if err := rows.Scan(&f.GuideID, &f.OperatorID, &f.Status, &f.TotalAmount, &f.RejectedAmount, &f.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan guide fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListGlosaFacts glosas con rejection_date en [from, to); la operadora sale de la guía.
func (r *AnalyticsRepo) ListGlosaFacts(ctx context.Context, tenantID, operatorID string, from, to time.Time) ([]repository.GlosaFact, error) {
	const query = `
	SELECT gl.id, gl.guide_id, g.operator_id, gl.classification, gl.code, gl.item_code, gl.status,
	       gl.rejected_amount, gl.recovered_amount, gl.rejection_date, gl.appeal_deadline
	FROM glosas gl
	JOIN guides g ON g.id = gl.guide_id AND g.tenant_id = gl.tenant_id
	WHERE gl.tenant_id = $1
	  AND ($2 = '' OR g.operator_id = $2)
	  AND ($3::timestamptz IS NULL OR gl.rejection_date >= $3)
	  AND ($4::timestamptz IS NULL OR gl.rejection_date <  $4)
	ORDER BY gl.rejection_date`

	rows, err := r.q.Query(ctx, query, tenantID, operatorID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("glosa facts: %w", err)
	}
	defer rows.Close()

	var out []repository.GlosaFact
	for rows.Next() {
		var f repository.GlosaFact
		if err := rows.Scan(
			&f.GlosaID, &f.GuideID, &f.OperatorID, &f.Classification, &f.Code, &f.ProcedureCode, &f.Status,
			&f.RejectedAmount, &f.RecoveredAmount, &f.RejectionDate, &f.AppealDeadline,
		); err != nil {
			return nil, fmt.Errorf("scan glosa fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

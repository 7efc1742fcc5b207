package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.GlosaRepository = (*GlosaRepo)(nil)

// GlosaRepo implementación de GlosaRepository. No hay DELETE.
type GlosaRepo struct {
	q Querier
}

// NewGlosaRepository construye el adaptador. Pasar pool o tx (Querier).
func NewGlosaRepository(q Querier) *GlosaRepo {
	return &GlosaRepo{q: q}
}

const glosaColumns = `id, tenant_id, batch_id, guide_id, guide_number, rejection_date, classification, code,
	description, rejected_amount, original_amount, item_sequence, item_code, status, justification,
	recovered_amount, operator_justification, appeal_deadline, version, created_at, updated_at`

func (r *GlosaRepo) Create(ctx context.Context, g *entity.Glosa) error {
	g.Version = 1
	query := `
		INSERT INTO glosas (` + glosaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.q.Exec(ctx, query,
		g.ID, g.TenantID, g.BatchID, g.GuideID, g.GuideNumber, g.RejectionDate, g.Classification, g.Code,
		g.Description, g.RejectedAmount, g.OriginalAmount, g.ItemSequence, g.ItemCode, g.Status, g.Justification,
		g.RecoveredAmount, g.OperatorJustification, g.AppealDeadline, g.Version, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidStatef("glosa %s ya existe", g.ID)
		}
		return fmt.Errorf("insert glosa: %w", err)
	}
	return nil
}

// Update solo cambia los campos mutables; valor glosado y clasificación son inmutables.
func (r *GlosaRepo) Update(ctx context.Context, g *entity.Glosa) error {
	query := `
		UPDATE glosas
		SET status                 = $3,
		    justification          = $4,
		    recovered_amount       = $5,
		    operator_justification = $6,
		    updated_at             = $7,
		    version                = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $8`
	tag, err := r.q.Exec(ctx, query,
		g.ID, g.TenantID, g.Status, g.Justification, g.RecoveredAmount, g.OperatorJustification, g.UpdatedAt, g.Version,
	)
	if err != nil {
		return fmt.Errorf("update glosa: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict(ctx, r.q, "glosas", "glosa", g.TenantID, g.ID)
	}
	g.Version++
	return nil
}

func (r *GlosaRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Glosa, error) {
	g, err := scanGlosa(r.q.QueryRow(ctx, `SELECT `+glosaColumns+` FROM glosas WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *GlosaRepo) ListByGuide(ctx context.Context, tenantID, guideID string) ([]*entity.Glosa, error) {
	return r.list(ctx, `WHERE tenant_id = $1 AND guide_id = $2`, tenantID, guideID)
}

func (r *GlosaRepo) ListByBatch(ctx context.Context, tenantID, batchID string) ([]*entity.Glosa, error) {
	return r.list(ctx, `WHERE tenant_id = $1 AND batch_id = $2`, tenantID, batchID)
}

func (r *GlosaRepo) ListDeadlineBefore(ctx context.Context, tenantID string, limit time.Time) ([]*entity.Glosa, error) {
	return r.list(ctx, `WHERE tenant_id = $1 AND appeal_deadline <= $2 AND status IN ('PENDING', 'UNDER_REVIEW')`, tenantID, limit)
}

// ListOpenTenants tenants con glosas sin decisión (monitor de plazos).
func (r *GlosaRepo) ListOpenTenants(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT DISTINCT tenant_id FROM glosas WHERE status IN ('PENDING', 'UNDER_REVIEW') ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list open tenants: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *GlosaRepo) list(ctx context.Context, where string, args ...any) ([]*entity.Glosa, error) {
	rows, err := r.q.Query(ctx, `SELECT `+glosaColumns+` FROM glosas `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list glosas: %w", err)
	}
	defer rows.Close()
	var out []*entity.Glosa
	for rows.Next() {
		g, err := scanGlosa(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGlosa(row pgx.Row) (*entity.Glosa, error) {
	var g entity.Glosa
	err := row.Scan(
		&g.ID, &g.TenantID, &g.BatchID, &g.GuideID, &g.GuideNumber, &g.RejectionDate, &g.Classification, &g.Code,
		&g.Description, &g.RejectedAmount, &g.OriginalAmount, &g.ItemSequence, &g.ItemCode, &g.Status, &g.Justification,
		&g.RecoveredAmount, &g.OperatorJustification, &g.AppealDeadline, &g.Version, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan glosa: %w", err)
	}
	return &g, nil
}

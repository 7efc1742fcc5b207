package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/claims-engine/internal/domain"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.RecursoRepository = (*RecursoRepo)(nil)

// RecursoRepo implementación de RecursoRepository.
type RecursoRepo struct {
	q Querier
}

// NewRecursoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRecursoRepository(q Querier) *RecursoRepo {
	return &RecursoRepo{q: q}
}

const recursoColumns = `id, tenant_id, glosa_id, submitted_at, justification, attachments, operator_protocol,
	response_date, result, operator_justification, approved_amount, version`

func (r *RecursoRepo) Create(ctx context.Context, rec *entity.Recurso) error {
	rec.Version = 1
	attachments := rec.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO recursos (`+recursoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.TenantID, rec.GlosaID, rec.SubmittedAt, rec.Justification, attachments, rec.OperatorProtocol,
		rec.ResponseDate, rec.Result, rec.OperatorJustification, rec.ApprovedAmount, rec.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidStatef("recurso %s ya existe", rec.ID)
		}
		return fmt.Errorf("insert recurso: %w", err)
	}
	return nil
}

// Update registra la respuesta; la justificación del prestador no cambia.
func (r *RecursoRepo) Update(ctx context.Context, rec *entity.Recurso) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE recursos
		SET response_date          = $3,
		    result                 = $4,
		    operator_justification = $5,
		    approved_amount        = $6,
		    operator_protocol      = $7,
		    version                = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $8`,
		rec.ID, rec.TenantID, rec.ResponseDate, rec.Result, rec.OperatorJustification, rec.ApprovedAmount,
		rec.OperatorProtocol, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update recurso: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict(ctx, r.q, "recursos", "recurso", rec.TenantID, rec.ID)
	}
	rec.Version++
	return nil
}

func (r *RecursoRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Recurso, error) {
	rec, err := scanRecurso(r.q.QueryRow(ctx, `SELECT `+recursoColumns+` FROM recursos WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *RecursoRepo) ListByGlosa(ctx context.Context, tenantID, glosaID string) ([]*entity.Recurso, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+recursoColumns+` FROM recursos WHERE tenant_id = $1 AND glosa_id = $2 ORDER BY submitted_at`,
		tenantID, glosaID)
	if err != nil {
		return nil, fmt.Errorf("list recursos: %w", err)
	}
	defer rows.Close()
	var out []*entity.Recurso
	for rows.Next() {
		rec, err := scanRecurso(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecurso(row pgx.Row) (*entity.Recurso, error) {
	var rec entity.Recurso
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.GlosaID, &rec.SubmittedAt, &rec.Justification, &rec.Attachments, &rec.OperatorProtocol,
		&rec.ResponseDate, &rec.Result, &rec.OperatorJustification, &rec.ApprovedAmount, &rec.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan recurso: %w", err)
	}
	return &rec, nil
}

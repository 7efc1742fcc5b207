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

var _ repository.GuideRepository = (*GuideRepo)(nil)

// GuideRepo implementación de GuideRepository (usable con pool o tx).
type GuideRepo struct {
	q Querier
}

// NewGuideRepository construye el adaptador. Pasar pool o tx (Querier).
func NewGuideRepository(q Querier) *GuideRepo {
	return &GuideRepo{q: q}
}

const guideColumns = `id, tenant_id, clinic_id, number, appointment_id, patient_id, beneficiary_card,
	operator_id, plan_id, total_amount, approved_amount, rejected_amount, status, batch_id,
	cancel_reason, version, created_at, updated_at, finalized_at, submitted_at`

// Create persiste la cabecera y los procedimientos con version = 1.
func (r *GuideRepo) Create(ctx context.Context, g *entity.Guide) error {
	g.Version = 1
	query := `
		INSERT INTO guides (` + guideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := r.q.Exec(ctx, query,
		g.ID, g.TenantID, g.ClinicID, nullIfEmpty(g.Number), g.AppointmentID, g.PatientID, g.BeneficiaryCard,
		g.OperatorID, g.PlanID, g.TotalAmount, g.ApprovedAmount, g.RejectedAmount, g.Status, nullIfEmpty(g.BatchID),
		g.CancelReason, g.Version, g.CreatedAt, g.UpdatedAt, g.FinalizedAt, g.SubmittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidStatef("guía %s o número %s ya existe", g.ID, g.Number)
		}
		return fmt.Errorf("insert guide: %w", err)
	}
	return r.replaceProcedures(ctx, g)
}

// Update persiste si la versión coincide; los procedimientos solo se reescriben en DRAFT.
func (r *GuideRepo) Update(ctx context.Context, g *entity.Guide) error {
	query := `
		UPDATE guides
		SET clinic_id        = $3,
		    number           = $4,
		    appointment_id   = $5,
		    patient_id       = $6,
		    beneficiary_card = $7,
		    plan_id          = $8,
		    total_amount     = $9,
		    approved_amount  = $10,
		    rejected_amount  = $11,
		    status           = $12,
		    batch_id         = $13,
		    cancel_reason    = $14,
		    updated_at       = $15,
		    finalized_at     = $16,
		    submitted_at     = $17,
		    version          = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $18`
	tag, err := r.q.Exec(ctx, query,
		g.ID, g.TenantID, g.ClinicID, nullIfEmpty(g.Number), g.AppointmentID, g.PatientID, g.BeneficiaryCard,
		g.PlanID, g.TotalAmount, g.ApprovedAmount, g.RejectedAmount, g.Status, nullIfEmpty(g.BatchID),
		g.CancelReason, g.UpdatedAt, g.FinalizedAt, g.SubmittedAt, g.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidStatef("número de guía %s ya existe", g.Number)
		}
		return fmt.Errorf("update guide: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict(ctx, r.q, "guides", "guía", g.TenantID, g.ID)
	}
	g.Version++
	if g.Status == entity.GuideStatusDraft {
		return r.replaceProcedures(ctx, g)
	}
	return nil
}

func (r *GuideRepo) replaceProcedures(ctx context.Context, g *entity.Guide) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM guide_procedures WHERE guide_id = $1`, g.ID); err != nil {
		return fmt.Errorf("delete guide procedures: %w", err)
	}
	for _, p := range g.Procedures {
		_, err := r.q.Exec(ctx, `
			INSERT INTO guide_procedures (guide_id, sequence, table_code, code, description, quantity, unit_value, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			g.ID, p.Sequence, p.Table, p.Code, p.Description, p.Quantity, p.UnitValue, p.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("insert guide procedure %d: %w", p.Sequence, err)
		}
	}
	return nil
}

// GetByID devuelve (nil, nil) si no existe en el tenant.
func (r *GuideRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Guide, error) {
	return r.getOne(ctx, `SELECT `+guideColumns+` FROM guides WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

// GetByNumber busca por número de guía del prestador.
func (r *GuideRepo) GetByNumber(ctx context.Context, tenantID, number string) (*entity.Guide, error) {
	return r.getOne(ctx, `SELECT `+guideColumns+` FROM guides WHERE tenant_id = $1 AND number = $2`, tenantID, number)
}

// ListByBatch lista las guías del lote por número.
func (r *GuideRepo) ListByBatch(ctx context.Context, tenantID, batchID string) ([]*entity.Guide, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE tenant_id = $1 AND batch_id = $2 ORDER BY number`, tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list guides by batch: %w", err)
	}
	defer rows.Close()

	var out []*entity.Guide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list guides by batch: %w", err)
	}
	for _, g := range out {
		if err := r.loadProcedures(ctx, g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *GuideRepo) getOne(ctx context.Context, query string, args ...any) (*entity.Guide, error) {
	g, err := scanGuide(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadProcedures(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *GuideRepo) loadProcedures(ctx context.Context, g *entity.Guide) error {
	rows, err := r.q.Query(ctx, `
		SELECT sequence, table_code, code, description, quantity, unit_value, executed_at
		FROM guide_procedures WHERE guide_id = $1 ORDER BY sequence`, g.ID)
	if err != nil {
		return fmt.Errorf("get guide procedures: %w", err)
	}
	defer rows.Close()
	g.Procedures = nil
	for rows.Next() {
		var p entity.Procedure
		if err := rows.Scan(&p.Sequence, &p.Table, &p.Code, &p.Description, &p.Quantity, &p.UnitValue, &p.ExecutedAt); err != nil {
			return fmt.Errorf("scan guide procedure: %w", err)
		}
		g.Procedures = append(g.Procedures, p)
	}
	return rows.Err()
}

func scanGuide(row pgx.Row) (*entity.Guide, error) {
	var g entity.Guide
	var number, batchID *string
	var finalizedAt, submittedAt *time.Time
	err := row.Scan(
		&g.ID, &g.TenantID, &g.ClinicID, &number, &g.AppointmentID, &g.PatientID, &g.BeneficiaryCard,
		&g.OperatorID, &g.PlanID, &g.TotalAmount, &g.ApprovedAmount, &g.RejectedAmount, &g.Status, &batchID,
		&g.CancelReason, &g.Version, &g.CreatedAt, &g.UpdatedAt, &finalizedAt, &submittedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan guide: %w", err)
	}
	g.Number = derefStr(number)
	g.BatchID = derefStr(batchID)
	g.FinalizedAt = finalizedAt
	g.SubmittedAt = submittedAt
	return &g, nil
}

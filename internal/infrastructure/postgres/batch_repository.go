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

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo implementación de BatchRepository. GuideIDs se guarda como TEXT[] en orden de alta.
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

const batchColumns = `id, tenant_id, clinic_id, operator_id, number, guide_ids, xml_payload, checksum, status,
	protocol_number, total_amount, approved_amount, rejected_amount, recovered_amount, reject_reason,
	version, created_at, updated_at, submitted_at, responded_at, paid_at`

func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	b.Version = 1
	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.q.Exec(ctx, query,
		b.ID, b.TenantID, b.ClinicID, b.OperatorID, b.Number, guideIDs(b), b.XMLPayload, b.Checksum, b.Status,
		nullIfEmpty(b.ProtocolNumber), b.TotalAmount, b.ApprovedAmount, b.RejectedAmount, b.RecoveredAmount, b.RejectReason,
		b.Version, b.CreatedAt, b.UpdatedAt, b.SubmittedAt, b.RespondedAt, b.PaidAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidStatef("lote %s o número %s ya existe", b.ID, b.Number)
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) Update(ctx context.Context, b *entity.Batch) error {
	query := `
		UPDATE batches
		SET guide_ids        = $3,
		    xml_payload      = $4,
		    checksum         = $5,
		    status           = $6,
		    protocol_number  = $7,
		    total_amount     = $8,
		    approved_amount  = $9,
		    rejected_amount  = $10,
		    recovered_amount = $11,
		    reject_reason    = $12,
		    updated_at       = $13,
		    submitted_at     = $14,
		    responded_at     = $15,
		    paid_at          = $16,
		    version          = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $17`
	tag, err := r.q.Exec(ctx, query,
		b.ID, b.TenantID, guideIDs(b), b.XMLPayload, b.Checksum, b.Status, nullIfEmpty(b.ProtocolNumber),
		b.TotalAmount, b.ApprovedAmount, b.RejectedAmount, b.RecoveredAmount, b.RejectReason,
		b.UpdatedAt, b.SubmittedAt, b.RespondedAt, b.PaidAt, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict(ctx, r.q, "batches", "lote", b.TenantID, b.ID)
	}
	b.Version++
	return nil
}

func (r *BatchRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Batch, error) {
	b, err := scanBatch(r.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// ListByStatus lista lotes del tenant en status (vacío = todos), más recientes primero.
func (r *BatchRepo) ListByStatus(ctx context.Context, tenantID, status string) ([]*entity.Batch, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+batchColumns+` FROM batches
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, tenantID, status)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	var out []*entity.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func guideIDs(b *entity.Batch) []string {
	if b.GuideIDs == nil {
		return []string{}
	}
	return b.GuideIDs
}

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	var protocol *string
	err := row.Scan(
		&b.ID, &b.TenantID, &b.ClinicID, &b.OperatorID, &b.Number, &b.GuideIDs, &b.XMLPayload, &b.Checksum, &b.Status,
		&protocol, &b.TotalAmount, &b.ApprovedAmount, &b.RejectedAmount, &b.RecoveredAmount, &b.RejectReason,
		&b.Version, &b.CreatedAt, &b.UpdatedAt, &b.SubmittedAt, &b.RespondedAt, &b.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	b.ProtocolNumber = derefStr(protocol)
	return &b, nil
}

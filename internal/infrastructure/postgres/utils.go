package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/claims-engine/internal/domain"
)

// Querier operaciones comunes a *pgxpool.Pool y pgx.Tx: los repositorios funcionan con ambos.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// versionConflict distingue fila inexistente de versión vieja tras un UPDATE sin filas afectadas.
func versionConflict(ctx context.Context, q Querier, table, kind, tenantID, id string) error {
	var exists bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1 AND tenant_id = $2)", id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("verificar %s %s: %w", kind, id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return fmt.Errorf("%w: %s %s", domain.ErrConcurrentUpdate, kind, id)
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/repository"
)

var _ repository.AnalyticsRepository = (*AnalyticsRepo)(nil)

// AnalyticsRepo arma los hechos de analítica leyendo el almacén.
type AnalyticsRepo struct {
	s *Store
}

// NewAnalyticsRepository construye el repositorio sobre el almacén.
func NewAnalyticsRepository(s *Store) *AnalyticsRepo {
	return &AnalyticsRepo{s: s}
}

// ListGuideFacts guías enviadas en [from, to).
func (r *AnalyticsRepo) ListGuideFacts(_ context.Context, tenantID, operatorID string, from, to time.Time) ([]repository.GuideFact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []repository.GuideFact
	for _, g := range r.s.guides {
		if g.TenantID != tenantID || g.SubmittedAt == nil {
			continue
		}
		if operatorID != "" && g.OperatorID != operatorID {
			continue
		}
		if !inRange(*g.SubmittedAt, from, to) {
			continue
		}
		out = append(out, repository.GuideFact{
			GuideID:        g.ID,
			OperatorID:     g.OperatorID,
			Status:         g.Status,
			TotalAmount:    g.TotalAmount,
			RejectedAmount: g.RejectedAmount,
			SubmittedAt:    *g.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// ListGlosaFacts glosas con fecha de glosa en [from, to).
func (r *AnalyticsRepo) ListGlosaFacts(_ context.Context, tenantID, operatorID string, from, to time.Time) ([]repository.GlosaFact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []repository.GlosaFact
	for _, gl := range r.s.glosas {
		if gl.TenantID != tenantID || !inRange(gl.RejectionDate, from, to) {
			continue
		}
		guideOperator := ""
		if g, ok := r.s.guides[gl.GuideID]; ok {
			guideOperator = g.OperatorID
		}
		if operatorID != "" && guideOperator != operatorID {
			continue
		}
		out = append(out, repository.GlosaFact{
			GlosaID:         gl.ID,
			GuideID:         gl.GuideID,
			OperatorID:      guideOperator,
			Classification:  gl.Classification,
			Code:            gl.Code,
			ProcedureCode:   gl.ItemCode,
			Status:          gl.Status,
			RejectedAmount:  gl.RejectedAmount,
			RecoveredAmount: gl.RecoveredAmount,
			RejectionDate:   gl.RejectionDate,
			AppealDeadline:  gl.AppealDeadline,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RejectionDate.Before(out[j].RejectionDate) })
	return out, nil
}

// inRange [from, to); un extremo cero no limita.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

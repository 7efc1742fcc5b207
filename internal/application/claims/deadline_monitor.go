package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// DeadlineMonitor avisa de glosas cuyo plazo de recurso vence dentro de la ventana configurada.
type DeadlineMonitor struct {
	d   Deps
	log *logger.Logger
}

// NewDeadlineMonitor construye el monitor.
func NewDeadlineMonitor(d Deps) *DeadlineMonitor {
	d = d.withDefaults()
	return &DeadlineMonitor{d: d, log: d.Log.Component("deadline")}
}

// Run emite APPEAL_DEADLINE_APPROACHING para cada glosa PENDING o UNDER_REVIEW con plazo en
// (now, now+warning]. Las ya vencidas no se notifican: las reporta analytics como atrasadas.
func (m *DeadlineMonitor) Run(ctx context.Context, tenantID string, now time.Time) (int, error) {
	limit := now.Add(m.d.Config.DeadlineWarning)
	glosas, err := m.d.Repos.Glosas.ListDeadlineBefore(ctx, tenantID, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, g := range glosas {
		if g.Terminal() || g.AppealOpen() || !g.AppealDeadline.After(now) {
			continue
		}
		left := g.AppealDeadline.Sub(now).Round(time.Hour)
		m.d.notify(ctx, entity.Notification{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Kind:      entity.NotificationAppealDeadlineApproaching,
			EntityID:  g.ID,
			Message:   fmt.Sprintf("La glosa %s de la guía %s vence en %s", g.Code, g.GuideNumber, left),
			CreatedAt: now,
			Payload: map[string]string{
				"guide_id":        g.GuideID,
				"appeal_deadline": g.AppealDeadline.Format(time.RFC3339),
				"rejected_amount": g.RejectedAmount.StringFixed(2),
			},
		})
		sent++
	}
	if sent > 0 {
		m.log.Tenant(tenantID).Info().Int("count", sent).Msg("avisos de plazo de recurso emitidos")
	}
	return sent, nil
}

// Loop ejecuta Run periódicamente para los tenants dados hasta que ctx termine.
// tenants nil recorre los tenants con glosas abiertas.
func (m *DeadlineMonitor) Loop(ctx context.Context, every time.Duration, tenants func(ctx context.Context) ([]string, error)) {
	if tenants == nil {
		tenants = m.d.Repos.Glosas.ListOpenTenants
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := tenants(ctx)
			if err != nil {
				m.log.Warn().Err(err).Msg("no se pudieron listar tenants")
				continue
			}
			for _, id := range ids {
				if _, err := m.Run(ctx, id, m.d.Clock.Now()); err != nil {
					m.log.Tenant(id).Error().Err(err).Msg("monitor de plazos fallido")
				}
			}
		}
	}
}

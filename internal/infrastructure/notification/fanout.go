package notification

import (
	"context"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// Sink destino de notificaciones.
type Sink interface {
	Notify(ctx context.Context, n entity.Notification) error
}

// Fanout entrega a todos los sinks. Las fallas se registran y nunca se propagan.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewFanout construye el fan-out; m puede ser nil.
func NewFanout(log *logger.Logger, m *metrics.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: m, log: log.Component("notification")}
}

// Notify siempre devuelve nil.
func (f *Fanout) Notify(ctx context.Context, n entity.Notification) error {
	for _, s := range f.sinks {
		if err := s.Notify(ctx, n); err != nil {
			f.metrics.IncNotification(n.Kind, "error")
			f.log.Warn().
				Err(err).
				Str("kind", n.Kind).
				Str("tenant_id", n.TenantID).
				Str("entity_id", n.EntityID).
				Msg("no se pudo entregar la notificación")
			continue
		}
		f.metrics.IncNotification(n.Kind, "ok")
	}
	return nil
}

// Package claims contiene los casos de uso del motor de cuentas médicas: guías, lotes,
// detección de glosas, recursos y monitoreo de plazos.
package claims

import (
	"context"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/domain/repository"
	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/internal/infrastructure/webservice"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

// Clock fuente de tiempo inyectable (pruebas deterministas).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapta una función a Clock.
type ClockFunc func() time.Time

// Now implementa Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Locker exclusión mutua por entidad (memoria o Redis). unlock es idempotente.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Notifier sink de notificaciones. Los errores se registran y nunca se propagan al caso de uso.
type Notifier interface {
	Notify(ctx context.Context, n entity.Notification) error
}

// AttachmentStore almacenamiento de anexos de recursos (MinIO o memoria).
type AttachmentStore interface {
	Put(ctx context.Context, tenantID, name, contentType string, content []byte) (string, error)
	Exists(ctx context.Context, tenantID, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// OperatorGateway contrato del cliente de webservice (implementado por *webservice.Client).
type OperatorGateway interface {
	Send(ctx context.Context, operatorID string, payload []byte) (*webservice.TransmissionResult, error)
	Query(ctx context.Context, operatorID, protocolNumber string) (*webservice.ProtocolStatus, error)
	QueryGuide(ctx context.Context, operatorID, guideNumber string) (*webservice.GuideStatus, error)
	CancelGuide(ctx context.Context, operatorID, guideNumber, reason string) (bool, error)
	SubmitAppeal(ctx context.Context, operatorID string, payload []byte) (*webservice.AppealResult, error)
}

// ProtocolCodec generación y parseo de mensajes TISS (implementado por *tiss.Codec).
type ProtocolCodec interface {
	RenderBatch(ctx *tiss.BatchBuildContext) ([]byte, string, error)
	RenderAppeal(ctx *tiss.AppealBuildContext) ([]byte, string, error)
	ParseAnalysis(raw []byte) (*tiss.AnalysisReport, error)
}

var (
	_ OperatorGateway = (*webservice.Client)(nil)
	_ ProtocolCodec   = (*tiss.Codec)(nil)
)

// Config parámetros de negocio del motor.
type Config struct {
	GuidePrefix     string        // Número de guía: {GuidePrefix}-{seq:08d}
	DeadlineWarning time.Duration // Antelación de APPEAL_DEADLINE_APPROACHING
}

// Deps dependencias compartidas por los casos de uso.
// Repos se usa para lecturas fuera de transacción; las escrituras pasan por Tx.
type Deps struct {
	Tx          repository.TxRunner
	Repos       repository.Set
	Operators   repository.OperatorRepository
	Sequences   repository.SequenceRepository
	Gateway     OperatorGateway
	Codec       ProtocolCodec
	Locker      Locker
	Notifier    Notifier
	Attachments AttachmentStore
	Metrics     *metrics.Metrics
	Clock       Clock
	Log         *logger.Logger
	Config      Config
}

const (
	sequenceGuide   = "guide"
	sequenceBatch   = "batch"
	defaultPrefix   = "GUIA"
	defaultWarning  = 72 * time.Hour
	guideNumberForm = "%s-%08d"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, entity.Notification) error { return nil }

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = ClockFunc(time.Now)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Config.GuidePrefix == "" {
		d.Config.GuidePrefix = defaultPrefix
	}
	if d.Config.DeadlineWarning <= 0 {
		d.Config.DeadlineWarning = defaultWarning
	}
	return d
}

// notify emite la notificación; la falla del sink solo se registra.
func (d Deps) notify(ctx context.Context, n entity.Notification) {
	if err := d.Notifier.Notify(ctx, n); err != nil {
		d.Log.Warn().Err(err).Str("kind", n.Kind).Str("entity_id", n.EntityID).Msg("notificación no entregada")
	}
}

// lock toma el lock de la entidad si hay Locker configurado.
func (d Deps) lock(ctx context.Context, key string) (func(), error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	return d.Locker.Lock(ctx, key)
}

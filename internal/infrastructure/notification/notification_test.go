package notification_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
	"github.com/jhoicas/claims-engine/internal/infrastructure/notification"
	"github.com/jhoicas/claims-engine/pkg/logger"
)

func aviso(i int, tenant string) entity.Notification {
	return entity.Notification{
		ID:        fmt.Sprintf("n-%d", i),
		TenantID:  tenant,
		Kind:      entity.NotificationGlosaCreated,
		EntityID:  fmt.Sprintf("gl-%d", i),
		CreatedAt: time.Date(2026, 5, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestBoundedStore_DescartaLaMasAntigua(t *testing.T) {
	s := notification.NewBoundedStore(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Notify(context.Background(), aviso(i, "t-1")))
	}
	assert.Equal(t, 3, s.Len())

	got := s.List("t-1", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "n-5", got[0].ID, "la más reciente primero")
	assert.Equal(t, "n-3", got[2].ID, "n-1 y n-2 se descartaron")

	assert.Len(t, s.List("t-1", 2), 2)
	assert.Empty(t, s.List("t-2", 0))
}

type canalFalso struct {
	exchange  string
	key       string
	publicado amqp.Publishing
	falla     error
}

func (c *canalFalso) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	c.exchange = name
	return nil
}

func (c *canalFalso) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.falla != nil {
		return c.falla
	}
	c.exchange, c.key, c.publicado = exchange, key, msg
	return nil
}

func (c *canalFalso) Close() error { return nil }

func TestAMQPPublisher_PublicaJSONPersistente(t *testing.T) {
	ch := &canalFalso{}
	p, err := notification.NewAMQPPublisher(ch, "claims.events")
	require.NoError(t, err)

	n := aviso(7, "t-1")
	n.Payload = map[string]string{"code": "T15"}
	require.NoError(t, p.Notify(context.Background(), n))

	assert.Equal(t, "claims.events", ch.exchange)
	assert.Equal(t, "claims.glosa_created", ch.key)
	assert.Equal(t, amqp.Persistent, ch.publicado.DeliveryMode)
	assert.Equal(t, "t-1", ch.publicado.Headers["tenant_id"])

	var back entity.Notification
	require.NoError(t, json.Unmarshal(ch.publicado.Body, &back))
	assert.Equal(t, n.ID, back.ID)
	assert.Equal(t, "T15", back.Payload["code"])
}

func TestFanout_FallaDeUnSinkNoSePropaga(t *testing.T) {
	store := notification.NewBoundedStore(10)
	roto, err := notification.NewAMQPPublisher(&canalFalso{falla: errors.New("conexión cerrada")}, "x")
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())

	f := notification.NewFanout(logger.Nop(), m, roto, store)
	require.NoError(t, f.Notify(context.Background(), aviso(1, "t-1")))

	assert.Equal(t, 1, store.Len(), "el sink sano igual recibe")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(entity.NotificationGlosaCreated, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(entity.NotificationGlosaCreated, "ok")))
}

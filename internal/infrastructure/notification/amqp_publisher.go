package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// Channel subconjunto de *amqp.Channel que usa el publicador.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publica cada notificación en un exchange topic con clave claims.<kind>.
type AMQPPublisher struct {
	ch       Channel
	exchange string
}

// DialAMQP conecta, abre un canal y declara el exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("conectar a RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("abrir canal RabbitMQ: %w", err)
	}
	p, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return p, conn, nil
}

// NewAMQPPublisher declara el exchange sobre un canal ya abierto.
func NewAMQPPublisher(ch Channel, exchange string) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declarar exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

// RoutingKey clave de ruteo para el tipo de notificación.
func RoutingKey(kind string) string {
	return "claims." + strings.ToLower(kind)
}

// Notify serializa con goccy/go-json y publica como mensaje persistente.
func (p *AMQPPublisher) Notify(ctx context.Context, n entity.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("serializar notificación %s: %w", n.ID, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    n.CreatedAt,
		Type:         n.Kind,
		Headers:      amqp.Table{"tenant_id": n.TenantID},
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(n.Kind), false, false, msg); err != nil {
		return fmt.Errorf("publicar notificación %s: %w", n.ID, err)
	}
	return nil
}

// Close cierra el canal.
func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

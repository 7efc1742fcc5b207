package webservice

import (
	"context"
	"time"

	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// Operaciones del contrato (etiquetas de log, métricas y TransmissionFailedError).
const (
	OpSend         = "send"
	OpQuery        = "query"
	OpQueryGuide   = "queryGuide"
	OpCancelGuide  = "cancelGuide"
	OpSubmitAppeal = "submitAppeal"
)

// Estados devueltos en TransmissionResult.
const (
	StatusAccepted = "ACCEPTED"
)

// TransmissionResult resultado del envío de un lote.
type TransmissionResult struct {
	ProtocolNumber string
	ReceivedAt     time.Time
	Status         string
	RawResponse    []byte
}

// ProtocolStatus situación de un protocolo consultado.
type ProtocolStatus struct {
	ProtocolNumber string
	Status         string
	RawResponse    []byte
}

// GuideStatus situación de una guía en la operadora.
type GuideStatus struct {
	GuideNumber string
	Status      string
	RawResponse []byte
}

// AppealResult recibo del recurso de glosa.
type AppealResult struct {
	ProtocolNumber string
	ReceivedAt     time.Time
	RawResponse    []byte
}

// Target operadora destino con la contraseña ya descifrada.
type Target struct {
	Operator *entity.OperatorWebservice
	Password string
}

// OperatorAdapter estrategia de comunicación con una operadora. El Client aplica reintentos,
// timeouts y rate limit; el adaptador hace un único intento por llamada.
type OperatorAdapter interface {
	Send(ctx context.Context, t Target, payload []byte) (*TransmissionResult, error)
	Query(ctx context.Context, t Target, protocolNumber string) (*ProtocolStatus, error)
	QueryGuide(ctx context.Context, t Target, guideNumber string) (*GuideStatus, error)
	CancelGuide(ctx context.Context, t Target, guideNumber, reason string) (bool, error)
	SubmitAppeal(ctx context.Context, t Target, payload []byte) (*AppealResult, error)
}

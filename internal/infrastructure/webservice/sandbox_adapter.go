package webservice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SandboxAdapter simula una operadora que acepta todo. Se usa en desarrollo
// (operadoras listadas en tiss.sandbox_operators) y en pruebas.
type SandboxAdapter struct {
	now       func() time.Time
	protocols atomic.Int64

	mu        sync.Mutex
	sent      map[string][]byte
	cancelled map[string]string
}

// NewSandboxAdapter crea el simulador.
func NewSandboxAdapter() *SandboxAdapter {
	return &SandboxAdapter{
		now:       time.Now,
		sent:      make(map[string][]byte),
		cancelled: make(map[string]string),
	}
}

func (a *SandboxAdapter) nextProtocol() string {
	return fmt.Sprintf("SBX%09d", a.protocols.Add(1))
}

// Send acepta el lote y devuelve un protocolo secuencial.
func (a *SandboxAdapter) Send(ctx context.Context, t Target, payload []byte) (*TransmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	protocol := a.nextProtocol()
	a.mu.Lock()
	a.sent[protocol] = append([]byte(nil), payload...)
	a.mu.Unlock()
	return &TransmissionResult{ProtocolNumber: protocol, ReceivedAt: a.now(), Status: StatusAccepted}, nil
}

// Query informa el protocolo como recibido si fue enviado al simulador.
func (a *SandboxAdapter) Query(ctx context.Context, t Target, protocolNumber string) (*ProtocolStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	_, ok := a.sent[protocolNumber]
	a.mu.Unlock()
	if !ok {
		e := NewError(KindBusiness, OpQuery, "protocolo desconocido", nil)
		e.Code = "1305"
		return nil, e
	}
	return &ProtocolStatus{ProtocolNumber: protocolNumber, Status: "1"}, nil
}

// QueryGuide devuelve la guía como en análisis, o cancelada.
func (a *SandboxAdapter) QueryGuide(ctx context.Context, t Target, guideNumber string) (*GuideStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	_, cancelled := a.cancelled[guideNumber]
	a.mu.Unlock()
	status := "1"
	if cancelled {
		status = "3"
	}
	return &GuideStatus{GuideNumber: guideNumber, Status: status}, nil
}

// CancelGuide siempre cancela.
func (a *SandboxAdapter) CancelGuide(ctx context.Context, t Target, guideNumber, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	a.cancelled[guideNumber] = reason
	a.mu.Unlock()
	return true, nil
}

// SubmitAppeal acepta el recurso.
func (a *SandboxAdapter) SubmitAppeal(ctx context.Context, t Target, payload []byte) (*AppealResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	protocol := a.nextProtocol()
	a.mu.Lock()
	a.sent[protocol] = append([]byte(nil), payload...)
	a.mu.Unlock()
	return &AppealResult{ProtocolNumber: protocol, ReceivedAt: a.now()}, nil
}

// Payload devuelve lo recibido bajo un protocolo (pruebas).
func (a *SandboxAdapter) Payload(protocolNumber string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.sent[protocolNumber]
	return p, ok
}

var _ OperatorAdapter = (*SandboxAdapter)(nil)

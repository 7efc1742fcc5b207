package webservice

import (
	"errors"
	"fmt"

	"github.com/jhoicas/claims-engine/internal/domain"
)

// ErrorKind taxonomía normalizada de fallas del webservice.
type ErrorKind string

const (
	// KindTimeout el intento superó el timeout de la operadora.
	KindTimeout ErrorKind = "timeout"
	// KindConnection falla de red o gateway (502/503/504).
	KindConnection ErrorKind = "connection"
	// KindAuth credenciales rechazadas (401/403).
	KindAuth ErrorKind = "auth"
	// KindValidation la operadora rechazó el formato de la solicitud (4xx, SOAP Client fault).
	KindValidation ErrorKind = "validation"
	// KindBusiness regla de negocio de la operadora (mensagemErro, SOAP Server fault).
	KindBusiness ErrorKind = "business"
	// KindProtocol respuesta ilegible o sin el recibo esperado.
	KindProtocol ErrorKind = "protocol"
)

// Error falla de una llamada a la operadora. Solo timeout y conexión son reintentables.
type Error struct {
	Kind       ErrorKind
	Operation  string
	Operator   string
	StatusCode int
	Code       string // Código de la operadora (mensagemErro/codigoGlosa o faultcode)
	Message    string
	Retryable  bool
	Cause      error
}

// NewError construye el error fijando Retryable según el tipo.
func NewError(kind ErrorKind, operation, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: kind == KindTimeout || kind == KindConnection,
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("webservice %s [%s]", e.Operation, e.Kind)
	if e.Operator != "" {
		msg += " operadora " + e.Operator
	}
	if e.Code != "" {
		msg += " código " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap expone la causa.
func (e *Error) Unwrap() error { return e.Cause }

// Is mapea al error de dominio: rechazo de la operadora o protocolo.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindAuth, KindValidation, KindBusiness:
		return target == domain.ErrOperatorRejected
	case KindProtocol:
		return target == domain.ErrProtocol
	}
	return false
}

// IsRetryable indica si vale la pena reintentar.
func IsRetryable(err error) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// KindOf devuelve el tipo de la falla (vacío si no es *Error).
func KindOf(err error) ErrorKind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

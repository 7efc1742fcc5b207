package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrValidation         = errors.New("entrada inválida")
	ErrInvalidState       = errors.New("transición inválida para el estado actual")
	ErrProtocol           = errors.New("XML TISS inválido")
	ErrTransmissionFailed = errors.New("transmisión a la operadora fallida")
	ErrOperatorRejected   = errors.New("la operadora rechazó la solicitud")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
)

// ErrConcurrentUpdate se devuelve cuando la versión persistida no coincide con la leída.
// Es un caso particular de ErrInvalidState: otra transición ganó la carrera.
var ErrConcurrentUpdate = fmt.Errorf("%w: la entidad fue modificada concurrentemente", ErrInvalidState)

// Validationf construye un error que envuelve ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidStatef construye un error que envuelve ErrInvalidState.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Protocolf construye un error que envuelve ErrProtocol.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// TransmissionFailedError indica que se agotaron los intentos contra el webservice.
// Conserva la última causa para diagnóstico; errors.Is(err, ErrTransmissionFailed) es true.
type TransmissionFailedError struct {
	Operation string // send, query, queryGuide, cancelGuide, submitAppeal
	Operator  string
	Attempts  int
	Cause     error
}

func (e *TransmissionFailedError) Error() string {
	return fmt.Sprintf("%s: operadora %s, operación %s, %d intento(s): %v",
		ErrTransmissionFailed.Error(), e.Operator, e.Operation, e.Attempts, e.Cause)
}

// Unwrap expone la causa subyacente.
func (e *TransmissionFailedError) Unwrap() error { return e.Cause }

// Is permite errors.Is(err, ErrTransmissionFailed).
func (e *TransmissionFailedError) Is(target error) bool {
	return target == ErrTransmissionFailed
}

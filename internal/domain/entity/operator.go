package entity

import "time"

// Valores por defecto del webservice de la operadora.
const (
	DefaultRetryAttempts    = 3
	DefaultBackoffBase      = time.Second
	DefaultWSTimeout        = 30 * time.Second
	DefaultAppealWindowDays = 30
	CharsetISO88591         = "ISO-8859-1"
	CharsetUTF8             = "UTF-8"
)

// OperatorWebservice configuración del WS TISS de una operadora (solo lectura para el motor).
// La contraseña llega cifrada; el cliente la descifra al momento del envío.
type OperatorWebservice struct {
	OperatorID        string
	Name              string
	ANSRegistry       string // Registro ANS de la operadora (6 dígitos)
	ProviderCode      string // Código del prestador en la operadora
	Endpoint          string
	Username          string
	EncryptedPassword string
	Timeout           time.Duration
	RetryAttempts     int
	BackoffBase       time.Duration
	UseSOAP           bool
	SignPayload       bool
	Charset           string
	Headers           map[string]string
	RateLimit         float64 // Solicitudes por segundo (0 = sin límite)
	AppealWindowDays  int
	Adapter           string // Estrategia registrada en el cliente ("" = SOAP estándar)
}

// WithDefaults completa los campos no configurados.
func (o OperatorWebservice) WithDefaults() OperatorWebservice {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultWSTimeout
	}
	if o.Charset == "" {
		o.Charset = CharsetISO88591
	}
	if o.AppealWindowDays <= 0 {
		o.AppealWindowDays = DefaultAppealWindowDays
	}
	return o
}

// Plan plan de salud de una operadora.
type Plan struct {
	ID         string
	OperatorID string
	Name       string
	ANSCode    string
	ValidUntil *time.Time
	Active     bool
}

// ValidAt indica si el plan está vigente para la operadora en la fecha dada.
func (p *Plan) ValidAt(operatorID string, now time.Time) bool {
	if p == nil || !p.Active || p.OperatorID != operatorID {
		return false
	}
	return p.ValidUntil == nil || !now.After(*p.ValidUntil)
}

package entity

import "time"

// Tipos de evento emitidos por el motor de cuentas.
const (
	NotificationGlosaCreated              = "GLOSA_CREATED"
	NotificationAppealDeadlineApproaching = "APPEAL_DEADLINE_APPROACHING"
	NotificationAppealResolved            = "APPEAL_RESOLVED"
	NotificationHighRejectionRate         = "HIGH_REJECTION_RATE"
)

// Notification evento fire-and-forget hacia el sink de notificaciones.
type Notification struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Kind      string            `json:"kind"`
	EntityID  string            `json:"entity_id"`
	Message   string            `json:"message"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

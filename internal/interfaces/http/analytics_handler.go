package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/claims-engine/internal/application/analytics"
	"github.com/jhoicas/claims-engine/internal/application/dto"
	"github.com/jhoicas/claims-engine/internal/domain/entity"
)

// AnalyticsHandler maneja los reportes de glosas (protegido).
type AnalyticsHandler struct {
	engine *analytics.Engine
}

// NewAnalyticsHandler construye el handler.
func NewAnalyticsHandler(engine *analytics.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine}
}

// filter lee from, to (YYYY-MM-DD o RFC3339) y operator_id de la query.
func filter(c *fiber.Ctx) (dto.AnalyticsFilter, bool) {
	from, err := parseDate(c.Query("from"))
	if err != nil {
		_ = badParam(c, "from inválido (YYYY-MM-DD o RFC3339)")
		return dto.AnalyticsFilter{}, false
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		_ = badParam(c, "to inválido (YYYY-MM-DD o RFC3339)")
		return dto.AnalyticsFilter{}, false
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		_ = badParam(c, "from debe ser anterior a to")
		return dto.AnalyticsFilter{}, false
	}
	return dto.AnalyticsFilter{From: from, To: to, OperatorID: c.Query("operator_id")}, true
}

// Summary tasa de glosa, totales, desglose y tendencia mensual.
// GET /api/analytics/summary?from=2026-01-01&to=2026-04-01&operator_id=...
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	f, ok := filter(c)
	if !ok {
		return nil
	}
	out, err := h.engine.Summary(c.Context(), tenantID, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(out)
}

// Alerts operadoras con tasa anómala y glosas vencidas.
// GET /api/analytics/alerts?multiple=2
func (h *AnalyticsHandler) Alerts(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	f, ok := filter(c)
	if !ok {
		return nil
	}
	multiple := decimal.Zero
	if raw := c.Query("multiple"); raw != "" {
		m, err := decimal.NewFromString(raw)
		if err != nil || !m.IsPositive() {
			return badParam(c, "multiple debe ser un número positivo")
		}
		multiple = m
	}
	out, err := h.engine.Alerts(c.Context(), tenantID, f, multiple)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(out)
}

// ── Notificaciones ────────────────────────────────────────────────────────────

// NotificationLister lectura de las últimas notificaciones (notification.BoundedStore).
type NotificationLister interface {
	List(tenantID string, limit int) []entity.Notification
}

// NotificationHandler expone las notificaciones recientes del tenant.
type NotificationHandler struct {
	store NotificationLister
}

// NewNotificationHandler construye el handler.
func NewNotificationHandler(store NotificationLister) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// List GET /api/notifications?limit=50
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit <= 0 || limit > 500 {
		return badParam(c, "limit debe estar entre 1 y 500")
	}
	list := h.store.List(tenantID, limit)
	if list == nil {
		list = []entity.Notification{}
	}
	return c.JSON(list)
}

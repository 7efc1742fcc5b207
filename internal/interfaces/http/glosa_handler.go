package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/claims-engine/internal/application/claims"
	"github.com/jhoicas/claims-engine/internal/application/dto"
)

// GlosaHandler maneja glosas y recursos (protegido).
type GlosaHandler struct {
	glosas   *claims.GlosaUseCase
	recursos *claims.RecursoUseCase
}

// NewGlosaHandler construye el handler.
func NewGlosaHandler(glosas *claims.GlosaUseCase, recursos *claims.RecursoUseCase) *GlosaHandler {
	return &GlosaHandler{glosas: glosas, recursos: recursos}
}

// ── Glosas ────────────────────────────────────────────────────────────────────

// ByGuide GET /api/guides/:id/glosas
func (h *GlosaHandler) ByGuide(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	list, err := h.glosas.ListByGuide(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGlosaResponses(list))
}

// ByBatch GET /api/batches/:id/glosas
func (h *GlosaHandler) ByBatch(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	list, err := h.glosas.ListByBatch(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGlosaResponses(list))
}

// GetByID GET /api/glosas/:id
func (h *GlosaHandler) GetByID(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	g, err := h.glosas.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGlosaResponse(g))
}

// Review PENDING → UNDER_REVIEW.
// POST /api/glosas/:id/review
func (h *GlosaHandler) Review(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	g, err := h.glosas.Review(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGlosaResponse(g))
}

// Accept acepta la glosa sin recurso.
// POST /api/glosas/:id/accept
func (h *GlosaHandler) Accept(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	g, err := h.glosas.Accept(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGlosaResponse(g))
}

// ── Recursos ──────────────────────────────────────────────────────────────────

// FileRecurso presenta el recurso ante la operadora.
// POST /api/glosas/:id/recursos
func (h *GlosaHandler) FileRecurso(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.FileRecursoRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	r, err := h.recursos.File(c.Context(), tenantID, c.Params("id"), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewRecursoResponse(r))
}

// Recursos GET /api/glosas/:id/recursos
func (h *GlosaHandler) Recursos(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	list, err := h.recursos.ListByGlosa(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	out := make([]dto.RecursoResponse, 0, len(list))
	for _, r := range list {
		out = append(out, dto.NewRecursoResponse(r))
	}
	return c.JSON(out)
}

// GetRecurso GET /api/recursos/:id
func (h *GlosaHandler) GetRecurso(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	r, err := h.recursos.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewRecursoResponse(r))
}

// RegisterResponse registra la decisión de la operadora sobre el recurso.
// POST /api/recursos/:id/response
func (h *GlosaHandler) RegisterResponse(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.RecursoResponseRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	r, err := h.recursos.RegisterResponse(c.Context(), tenantID, c.Params("id"), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewRecursoResponse(r))
}

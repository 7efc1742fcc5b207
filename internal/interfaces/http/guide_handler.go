package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/claims-engine/internal/application/claims"
	"github.com/jhoicas/claims-engine/internal/application/dto"
)

// GuideHandler maneja las guías TISS (protegido).
type GuideHandler struct {
	uc *claims.GuideUseCase
}

// NewGuideHandler construye el handler.
func NewGuideHandler(uc *claims.GuideUseCase) *GuideHandler {
	return &GuideHandler{uc: uc}
}

// Create crea una guía en DRAFT.
// POST /api/guides
func (h *GuideHandler) Create(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.CreateGuideRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.ClinicID == "" {
		in.ClinicID = GetClinicID(c)
	}
	g, err := h.uc.Create(c.Context(), tenantID, in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewGuideResponse(g))
}

// GetByID GET /api/guides/:id
func (h *GuideHandler) GetByID(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	g, err := h.uc.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGuideResponse(g))
}

// AddProcedure agrega una línea a la guía DRAFT.
// POST /api/guides/:id/procedures
func (h *GuideHandler) AddProcedure(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.ProcedureRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	g, err := h.uc.AddProcedure(c.Context(), tenantID, c.Params("id"), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGuideResponse(g))
}

// RemoveProcedure DELETE /api/guides/:id/procedures/:seq
func (h *GuideHandler) RemoveProcedure(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	seq, err := strconv.Atoi(c.Params("seq"))
	if err != nil || seq <= 0 {
		return badParam(c, "secuencia de procedimiento inválida")
	}
	g, err := h.uc.RemoveProcedure(c.Context(), tenantID, c.Params("id"), seq)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGuideResponse(g))
}

// Finalize asigna el número y congela la guía.
// POST /api/guides/:id/finalize
func (h *GuideHandler) Finalize(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	g, err := h.uc.Finalize(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGuideResponse(g))
}

// Cancel POST /api/guides/:id/cancel
func (h *GuideHandler) Cancel(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := dto.Validate(in); err != nil {
		return fail(c, err)
	}
	g, err := h.uc.Cancel(c.Context(), tenantID, c.Params("id"), in.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewGuideResponse(g))
}

// Status consulta la situación de la guía en la operadora.
// GET /api/guides/:id/status
func (h *GuideHandler) Status(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	st, err := h.uc.RefreshStatus(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"guide_number": st.GuideNumber, "status": st.Status})
}

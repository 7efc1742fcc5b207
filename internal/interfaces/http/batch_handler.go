package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/claims-engine/internal/application/claims"
	"github.com/jhoicas/claims-engine/internal/application/dto"
)

// BatchHandler maneja los lotes de guías y su intercambio con la operadora (protegido).
type BatchHandler struct {
	uc *claims.BatchUseCase
}

// NewBatchHandler construye el handler.
func NewBatchHandler(uc *claims.BatchUseCase) *BatchHandler {
	return &BatchHandler{uc: uc}
}

// Create POST /api/batches
func (h *BatchHandler) Create(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.CreateBatchRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.ClinicID == "" {
		in.ClinicID = GetClinicID(c)
	}
	b, err := h.uc.Create(c.Context(), tenantID, in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewBatchResponse(b))
}

// GetByID GET /api/batches/:id
func (h *BatchHandler) GetByID(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// List lista los lotes del tenant, opcionalmente por estado (?status=SUBMITTED).
// GET /api/batches
func (h *BatchHandler) List(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	list, err := h.uc.List(c.Context(), tenantID, c.Query("status"))
	if err != nil {
		return fail(c, err)
	}
	out := make([]dto.BatchResponse, 0, len(list))
	for _, b := range list {
		out = append(out, dto.NewBatchResponse(b))
	}
	return c.JSON(out)
}

// AddGuide POST /api/batches/:id/guides
func (h *BatchHandler) AddGuide(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	var in dto.BatchGuideRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := dto.Validate(in); err != nil {
		return fail(c, err)
	}
	b, err := h.uc.AddGuide(c.Context(), tenantID, c.Params("id"), in.GuideID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// RemoveGuide DELETE /api/batches/:id/guides/:guideId
func (h *BatchHandler) RemoveGuide(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.RemoveGuide(c.Context(), tenantID, c.Params("id"), c.Params("guideId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// GenerateXML genera y valida el mensaje ENVIO_LOTE_GUIAS.
// POST /api/batches/:id/xml
func (h *BatchHandler) GenerateXML(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.GenerateXML(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// DownloadXML devuelve el XML generado tal cual se enviará.
// GET /api/batches/:id/xml
func (h *BatchHandler) DownloadXML(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.Get(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if b.XMLPayload == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "el lote no tiene XML generado"})
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=ISO-8859-1")
	return c.SendString(b.XMLPayload)
}

// Revert descarta el XML: READY_TO_SEND → DRAFT.
// POST /api/batches/:id/revert
func (h *BatchHandler) Revert(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.RevertToDraft(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// Submit transmite el lote. Repetirlo sobre un lote enviado devuelve el mismo protocolo.
// POST /api/batches/:id/submit
func (h *BatchHandler) Submit(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.Submit(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// Protocol consulta el protocolo en la operadora.
// GET /api/batches/:id/protocol
func (h *BatchHandler) Protocol(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	st, err := h.uc.QueryProtocol(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"protocol_number": st.ProtocolNumber, "status": st.Status})
}

// ProcessResponse recibe el DEMONSTRATIVO_ANALISE_CONTA como cuerpo crudo (XML).
// POST /api/batches/:id/response
func (h *BatchHandler) ProcessResponse(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	raw := append([]byte(nil), c.Body()...)
	if len(raw) == 0 {
		return badBody(c)
	}
	res, err := h.uc.ProcessResponse(c.Context(), tenantID, c.Params("id"), raw)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.ProcessResponseResponse{
		Batch:   dto.NewBatchResponse(res.Batch),
		Glosas:  dto.NewGlosaResponses(res.Glosas),
		Skipped: len(res.Skipped),
	})
}

// Pay POST /api/batches/:id/pay
func (h *BatchHandler) Pay(c *fiber.Ctx) error {
	tenantID, ok := tenant(c)
	if !ok {
		return nil
	}
	b, err := h.uc.MarkPaid(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

// Reject rechazo manual antes del envío.
// POST /api/batches/:id/reject
func (h *BatchHandler) Reject(c *fiber.Ctx) error {
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
	b, err := h.uc.Reject(c.Context(), tenantID, c.Params("id"), in.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBatchResponse(b))
}

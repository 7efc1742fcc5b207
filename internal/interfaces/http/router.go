package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/claims-engine/internal/application/analytics"
	"github.com/jhoicas/claims-engine/internal/application/claims"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	GuideUC       *claims.GuideUseCase
	BatchUC       *claims.BatchUseCase
	GlosaUC       *claims.GlosaUseCase
	RecursoUC     *claims.RecursoUseCase
	Analytics     *analytics.Engine
	Notifications NotificationLister
	Gatherer      prometheus.Gatherer // nil = prometheus.DefaultGatherer
	JWTSecret     string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	read := RequireRole(RoleAdmin, RoleFaturista, RoleAuditor)
	write := RequireRole(RoleAdmin, RoleFaturista)

	// Guías
	guides := api.Group("/guides")
	guideHandler := NewGuideHandler(deps.GuideUC)
	glosaHandler := NewGlosaHandler(deps.GlosaUC, deps.RecursoUC)
	guides.Post("/", write, guideHandler.Create)
	guides.Get("/:id", read, guideHandler.GetByID)
	guides.Post("/:id/procedures", write, guideHandler.AddProcedure)
	guides.Delete("/:id/procedures/:seq", write, guideHandler.RemoveProcedure)
	guides.Post("/:id/finalize", write, guideHandler.Finalize)
	guides.Post("/:id/cancel", write, guideHandler.Cancel)
	guides.Get("/:id/status", read, guideHandler.Status)
	guides.Get("/:id/glosas", read, glosaHandler.ByGuide)

	// Lotes
	batches := api.Group("/batches")
	batchHandler := NewBatchHandler(deps.BatchUC)
	batches.Post("/", write, batchHandler.Create)
	batches.Get("/", read, batchHandler.List)
	batches.Get("/:id", read, batchHandler.GetByID)
	batches.Post("/:id/guides", write, batchHandler.AddGuide)
	batches.Delete("/:id/guides/:guideId", write, batchHandler.RemoveGuide)
	batches.Post("/:id/xml", write, batchHandler.GenerateXML)
	batches.Get("/:id/xml", read, batchHandler.DownloadXML)
	batches.Post("/:id/revert", write, batchHandler.Revert)
	batches.Post("/:id/submit", write, batchHandler.Submit)
	batches.Get("/:id/protocol", read, batchHandler.Protocol)
	batches.Post("/:id/response", write, batchHandler.ProcessResponse)
	batches.Post("/:id/pay", write, batchHandler.Pay)
	batches.Post("/:id/reject", write, batchHandler.Reject)
	batches.Get("/:id/glosas", read, glosaHandler.ByBatch)

	// Glosas y recursos
	glosas := api.Group("/glosas")
	glosas.Get("/:id", read, glosaHandler.GetByID)
	glosas.Post("/:id/review", write, glosaHandler.Review)
	glosas.Post("/:id/accept", write, glosaHandler.Accept)
	glosas.Post("/:id/recursos", write, glosaHandler.FileRecurso)
	glosas.Get("/:id/recursos", read, glosaHandler.Recursos)

	recursos := api.Group("/recursos")
	recursos.Get("/:id", read, glosaHandler.GetRecurso)
	recursos.Post("/:id/response", write, glosaHandler.RegisterResponse)

	// Analítica
	analyticsHandler := NewAnalyticsHandler(deps.Analytics)
	api.Get("/analytics/summary", read, analyticsHandler.Summary)
	api.Get("/analytics/alerts", read, analyticsHandler.Alerts)

	// Notificaciones
	if deps.Notifications != nil {
		api.Get("/notifications", read, NewNotificationHandler(deps.Notifications).List)
	}
}

package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/example/nyota/internal/config"
	"github.com/example/nyota/internal/handlers"
	"github.com/example/nyota/internal/middleware"
	"github.com/example/nyota/internal/services"
)

// Register wires up all HTTP routes. The broker and session store are built
// once by the caller and injected here, never reached through package state.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, broker *services.Broker, store services.SessionStore) {
	ledger := services.NewLedgerService(db)
	gateway := services.NewGatewayClient(
		cfg.GatewayBaseURL,
		cfg.GatewayAPIKey,
		cfg.PublicBaseURL+"/api/payments/webhook",
		cfg.GatewayTimeout,
		ledger,
	)
	sessions := services.NewSessionService(store)
	access := services.NewAccessService(db, ledger)

	paymentHandler := handlers.NewPaymentHandler(db, ledger, gateway, broker, sessions, cfg)
	contentHandler := handlers.NewContentHandler(db, access, sessions, cfg)
	adminHandler := handlers.NewAdminHandler(db)

	app.Use(middleware.SessionMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	payments := api.Group("/payments")
	payments.Post("/initiate", paymentHandler.Initiate)
	payments.Post("/webhook", paymentHandler.Webhook)
	payments.Get("/stream/:channel_id", paymentHandler.Stream)
	payments.Post("/cancel-claim", paymentHandler.CancelClaim)
	payments.Get("/:id/status", paymentHandler.Status)
	payments.Post("/:id/finalize", paymentHandler.Finalize)

	api.Get("/library", contentHandler.Library)
	api.Get("/assets/:id/files/:file_id", contentHandler.File)

	admin := api.Group("/admin", middleware.CreatorAuthMiddleware(cfg))
	admin.Get("/attempts", adminHandler.ListAttempts)
	admin.Put("/settings", adminHandler.UpdateSettings)
}

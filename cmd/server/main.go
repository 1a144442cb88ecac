package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/nyota/internal/config"
	"github.com/example/nyota/internal/database"
	"github.com/example/nyota/internal/routes"
	"github.com/example/nyota/internal/services"
	"github.com/example/nyota/internal/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg.AppEnv); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer utils.SyncLogger()
	logger := utils.GetLogger()

	db := database.Connect(cfg.DatabaseURL)

	store, err := services.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer store.Close()

	broker := services.NewBroker()

	app := fiber.New(fiber.Config{
		AppName: "Nyota Digital",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, db, cfg, broker, store)

	logger.Info("starting server", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		logger.Fatal("fiber.Listen error", zap.Error(err))
	}
}

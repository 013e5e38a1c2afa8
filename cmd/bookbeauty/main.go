package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/controllers"
	"github.com/opslagbijjou-creator/bookbeauty-api/app/repository"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/cache"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/database"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/mail"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/payments"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/reconcile"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	// Payment orchestration wiring
	mollieClient := payments.NewMollieClientFromEnv()
	paymentRepo := payments.NewRepository(database.GetDB())
	tokenManager := payments.NewTokenManager(paymentRepo, mollieClient)
	paymentService := payments.NewService(paymentRepo, tokenManager)
	paymentService.SetNotifier(mail.NewBookingNotifier(repository.GetGlobalFactory().GetUserRepository()))

	controllers.SetPaymentService(paymentService)
	controllers.SetMollieWiring(mollieClient, tokenManager)

	// Safety net for missed webhooks
	sweeper := reconcile.NewSweeper(paymentService)
	if err := sweeper.Start(); err != nil {
		log.Printf("starting reconcile sweep failed: %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "bookbeauty-api",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

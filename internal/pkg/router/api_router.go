package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/controllers"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Public routes
	v1.Post("/auth/register", controllers.HandleApiRegister)
	v1.Post("/auth/login", controllers.HandleApiLogin)
	v1.Get("/companies/:id", controllers.HandleGetCompany)
	v1.Get("/companies/:id/services", controllers.HandleListCompanyServices)
	v1.Get("/companies/:id/slots", controllers.HandleGetCompanySlots)

	// Provider-facing routes: no bearer token, the payment id itself is the
	// only secret and every update is re-verified against the provider API.
	v1.Post("/payments/webhook", controllers.HandleMollieWebhook)
	v1.Get("/payments/webhook", controllers.HandleMollieWebhookGet)
	v1.Get("/mollie/callback", controllers.HandleMollieCallback)

	// Authenticated routes
	auth := v1.Group("", middleware.JWTAuthMiddleware())
	auth.Post("/bookings", controllers.HandleCreateBooking)
	auth.Get("/bookings", controllers.HandleListMyBookings)
	auth.Get("/bookings/:id", controllers.HandleGetBooking)
	auth.Post("/bookings/:id/payment", controllers.HandleCreateBookingPayment)
	auth.Post("/bookings/:id/cancel", controllers.HandleCancelBooking)
	auth.Post("/payments/sync", controllers.HandleSyncPayment)
	auth.Get("/payments/sync", controllers.HandleSyncPayment)

	// Company management
	auth.Post("/companies", controllers.HandleCreateCompany)
	company := auth.Group("/companies/:id", middleware.RequireCompany)
	company.Post("/services", controllers.HandleCreateService)
	company.Put("/opening-hours", controllers.HandleSaveOpeningHours)
	company.Get("/mollie/status", controllers.HandleGetMollieStatus)
	company.Post("/mollie/connect", controllers.HandleMollieConnect)
	company.Post("/mollie/disconnect", controllers.HandleMollieDisconnect)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

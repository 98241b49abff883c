package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/bookstore/internal/config"
	"github.com/example/bookstore/internal/handlers"
	"github.com/example/bookstore/internal/middleware"
	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

// Services holds the collaborators the HTTP layer is built from.
type Services struct {
	Users     *services.UserStore
	OTP       *services.OTPService
	Sessions  *utils.SessionIssuer
	Payments  *services.PaymentService
	Purchases *services.PurchaseService
	// LimiterStorage backs the rate limiter. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, svc Services) {
	authHandler := handlers.NewAuthHandler(svc.Users, svc.OTP, svc.Sessions)
	paymentHandler := handlers.NewPaymentHandler(svc.Payments, svc.Purchases)
	profileHandler := handlers.NewProfileHandler(svc.Users, svc.Purchases)
	resetHandler := handlers.NewPasswordResetHandler(svc.Users, svc.OTP)

	limit := middleware.RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow, svc.LimiterStorage)
	requireAuth := middleware.AuthMiddleware(svc.Sessions)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})

	// Auth routes
	app.Post("/register", authHandler.Register)
	app.Post("/login", limit, authHandler.Login)
	app.Post("/send-otp", limit, authHandler.SendOTP)
	app.Post("/verify-otp", limit, authHandler.VerifyOTP)
	app.Post("/forgot-password", limit, resetHandler.ForgotPassword)
	app.Post("/reset-password", limit, resetHandler.ResetPassword)

	// Checkout routes
	app.Post("/create-order", requireAuth, paymentHandler.CreateOrder)
	app.Post("/verify-payment", requireAuth, paymentHandler.VerifyPayment)

	// Profile routes
	app.Get("/profile", requireAuth, profileHandler.GetProfile)
	app.Patch("/profile", requireAuth, profileHandler.UpdateProfile)
	app.Get("/purchases", requireAuth, profileHandler.ListPurchases)
}

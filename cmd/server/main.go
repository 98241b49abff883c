package main

import (
	"context"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/example/bookstore/internal/config"
	"github.com/example/bookstore/internal/database"
	"github.com/example/bookstore/internal/handlers"
	"github.com/example/bookstore/internal/middleware"
	"github.com/example/bookstore/internal/routes"
	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	utils.SetupLogger(cfg.IsProduction())

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database setup failed")
	}

	users := services.NewUserStore(db, cfg.BcryptCost)

	var challenges services.ChallengeStore = services.NewMemoryChallengeStore()
	var redisClient *redis.Client
	var limiterStorage fiber.Storage
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis unreachable")
		}
		challenges = services.NewRedisChallengeStore(redisClient)
		limiterStorage = middleware.NewRedisLimiterStorage(cfg.RedisURL)
		log.Info().Msg("using redis for otp challenges and rate limits")
	}

	var sms services.SMSSender = services.LogSMSSender{}
	if cfg.SMSAPIKey != "" {
		sms = services.NewSMSGatewayClient(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSSender)
	}

	var receipts services.ReceiptSender
	if cfg.SMTPEnabled() {
		receipts = services.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	}

	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	gateway := services.NewRazorpayClient(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret)
	purchases := services.NewPurchaseService(db, telegram, receipts)

	app := fiber.New(fiber.Config{
		AppName:      "Bookstore Backend",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	routes.Register(app, cfg, routes.Services{
		Users:          users,
		OTP:            services.NewOTPService(challenges, sms, users, cfg.OTPTTL),
		Sessions:       utils.NewSessionIssuer(cfg.JWTSecret, cfg.TokenExpires),
		Payments:       services.NewPaymentService(db, gateway, cfg.PaymentKeySecret, cfg.PaymentCurrency),
		Purchases:      purchases,
		LimiterStorage: limiterStorage,
	})

	go func() {
		log.Info().Str("port", cfg.AppPort).Msg("starting server")
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Fatal().Err(err).Msg("fiber.Listen error")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			// HTTP drains first, then Redis and the database close.
			"bookstore": func(ctx context.Context) error {
				log.Info().Msg("graceful shutdown initiated")
				if err := app.ShutdownWithContext(ctx); err != nil {
					return err
				}
				purchases.Wait()

				if limiterStorage != nil {
					_ = limiterStorage.Close()
				}
				if redisClient != nil {
					if err := redisClient.Close(); err != nil {
						log.Error().Err(err).Msg("redis close failed")
					}
				}

				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("exit_code", exitCode).Msg("server stopped")
	os.Exit(exitCode)
}

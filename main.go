package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pocket-bounty/handlers"
	"pocket-bounty/middleware"
	"pocket-bounty/models"
	"pocket-bounty/services"
	"pocket-bounty/utils"
	"pocket-bounty/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 32 * 1024 * 1024, // attachments cap at 25MB
	})

	// Only Gateway requests allowed — no exceptions.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Bounty{},
		&models.BountyApplication{},
		&models.BountyAttachment{},
		&models.Transaction{},
		&models.PlatformRevenue{},
		&models.Activity{},
		&models.Payment{},
		&models.PaymentMethod{},
		&models.MessageThread{},
		&models.Message{},
		&models.Friendship{},
		&models.Review{},
		&models.Referral{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.EnsureUploadDir(); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	// Redis backs the sweep leases; optional in development.
	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
	} else {
		log.Println("REDIS_ADDR not set — sweep runs without cross-instance leases")
	}

	fees := services.FeePolicyFromEnv()
	ledger := services.NewLedgerService(db)
	paymentsClient := services.NewPaymentsClient()
	hub := services.NewHub()

	bountyService := services.NewBountyService(db, ledger, fees)
	walletService := services.NewWalletService(db, ledger, fees, paymentsClient)
	pointsService := services.NewPointsService(db, ledger, paymentsClient)
	messageService := services.NewMessageService(db, hub)
	friendService := services.NewFriendService(db)
	reviewService := services.NewReviewService(db)
	statsService := services.NewStatsService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := services.NewExpirySweeper(db, ledger, fees, rdb)
	sweeper.Start(ctx)

	reconciler := workers.NewPayoutReconciler(db, ledger, paymentsClient)
	go workers.PollPayouts(ctx, reconciler, 30*time.Second)

	handlers.SetupBountyRoutes(app, bountyService)
	handlers.SetupWalletRoutes(app, walletService, pointsService, statsService)
	handlers.SetupSocialRoutes(app, messageService, friendService, reviewService, hub)

	app.Static("/uploads", "./uploads")

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on http://localhost:%s", port)
	log.Println("Expiry sweep scheduled (every 1m)")
	log.Println("Payout reconciliation running (every 30s)")
	log.Println("GatewayAuthMiddleware enforced globally — all requests must come from the Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

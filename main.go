package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hackathon-payout-system/handlers"
	"hackathon-payout-system/middleware"
	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"
	"hackathon-payout-system/utils"
	"hackathon-payout-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Hackathon{},
		&models.RankedParticipant{},
		&models.DistributionJob{},
		&models.WinnerPayout{},
		&models.TransactionRecord{},
		&models.AuditLogEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	store := storage.NewGormStore(db)

	// --- CONFIGURE Ledger Service Details for Payout Submission ---
	ledgerServiceURL := os.Getenv("LEDGER_SERVICE_URL")
	if ledgerServiceURL == "" {
		log.Fatal("LEDGER_SERVICE_URL environment variable not set")
	}
	ledgerServiceToken := os.Getenv("LEDGER_SERVICE_TOKEN")
	if ledgerServiceToken == "" {
		log.Fatal("LEDGER_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	curve := workers.DefaultPrizeCurve
	if raw := os.Getenv("PRIZE_CURVE"); raw != "" {
		curve, err = workers.ParsePrizeCurve(raw)
		if err != nil {
			log.Fatal("invalid PRIZE_CURVE:", err)
		}
	}

	scanInterval := envDurationSeconds("SCAN_INTERVAL_SECONDS", 60*time.Second)
	reconcileInterval := envDurationSeconds("RECONCILE_INTERVAL_SECONDS", 5*time.Minute)
	graceDelay := envDurationSeconds("DISTRIBUTION_GRACE_SECONDS", 60*time.Second)
	txPollInterval := envDurationSeconds("TX_POLL_INTERVAL_SECONDS", 5*time.Second)
	txMaxAttempts := envInt("TX_MAX_ATTEMPTS", 10)
	ledgerConcurrency := envInt("LEDGER_MAX_CONCURRENCY", 4)

	bus := services.NewPhaseBus()
	auditService := services.NewAuditService(store)
	lifecycleService := services.NewLifecycleService(store, auditService, bus)

	ledgerClient := workers.NewHTTPLedgerClient(ledgerServiceURL, ledgerServiceToken)
	txMonitor := workers.NewTransactionMonitor(store, auditService, ledgerClient, txPollInterval, txMaxAttempts)
	distributionWorker := workers.NewDistributionWorker(store, store, auditService, ledgerClient, txMonitor, curve, ledgerConcurrency)
	distributionService := services.NewDistributionService(store, store, auditService, distributionWorker, graceDelay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	txMonitor.Start(ctx)
	distributionService.Start(ctx, bus)

	scheduler, err := services.StartSchedulers(ctx, lifecycleService, distributionService, scanInterval, reconcileInterval)
	if err != nil {
		log.Fatal("failed to start schedulers:", err)
	}

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupLifecycleRoutes(app, lifecycleService)
	handlers.SetupDistributionRoutes(app, distributionService, txMonitor)
	handlers.SetupAuditRoutes(app, auditService, store)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Lifecycle scan running (every %s)", scanInterval)
	log.Printf("✅ Distribution reconcile sweep running (every %s)", reconcileInterval)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")

	bus.Close()
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	txMonitor.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func envDurationSeconds(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		log.Fatalf("invalid %s: %q", name, raw)
	}
	return time.Duration(seconds) * time.Second
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", name, raw)
	}
	return n
}

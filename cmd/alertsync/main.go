package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/connectors"
	"github.com/alertsync/alertsync/internal/database"
	"github.com/alertsync/alertsync/internal/handlers"
	"github.com/alertsync/alertsync/internal/matcher"
	"github.com/alertsync/alertsync/internal/middleware"
	"github.com/alertsync/alertsync/internal/notify"
	"github.com/alertsync/alertsync/internal/reconciler"
	"github.com/alertsync/alertsync/internal/scheduler"
	"github.com/alertsync/alertsync/internal/services"
)

const version = "1.2.0"

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting alertsync %s...", version)

	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Database connection and migrations
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}
	db := database.GetDB()

	// Upstream connectors
	grafana := connectors.NewGrafanaClient(cfg.GrafanaURL, cfg.GrafanaAPIKey, cfg.FetchTimeout)
	log.Printf("Grafana connector initialized: %s", cfg.GrafanaURL)

	ops := connectors.NewOpsClient(connectors.OpsClientOptions{
		BaseURL:   cfg.OpsAPIBaseURL,
		TenantURL: cfg.JiraURL,
		UserEmail: cfg.JiraUserEmail,
		APIToken:  cfg.JiraAPIToken,
		CloudID:   cfg.OpsCloudID,
		Timeout:   cfg.FetchTimeout,
	})
	log.Printf("JSM Ops connector initialized: %s", cfg.OpsAPIBaseURL)

	// Reconciliation engine with the Slack pass-summary notifier
	engine := reconciler.NewEngine(db, grafana, ops,
		matcher.New(cfg.MatchThreshold, cfg.MatchAliasFirst),
		cfg.Exclusions,
		reconciler.Options{
			OpsFetchLimit: cfg.OpsFetchLimit,
			FetchTimeout:  cfg.FetchTimeout,
			PassTimeout:   cfg.PassTimeout,
			AutoClose:     cfg.AutoClose,
		},
		notify.NewSlackNotifier(db),
	)
	log.Printf("Reconciliation engine initialized (threshold %d, auto-close %t)", cfg.MatchThreshold, cfg.AutoClose)

	// Scheduler: jobs come from the sync_jobs table, loaded only after
	// migrations so the table is guaranteed to exist.
	sched := scheduler.New(db)
	sched.Register(database.DefaultSyncJobName, engine.Run)
	if err := sched.LoadJobs(); err != nil {
		log.Fatalf("Failed to load scheduler jobs: %v", err)
	}
	sched.Start()

	// Services and HTTP routes
	alertService := services.NewAlertService(db, ops)

	mux := http.NewServeMux()
	handlers.NewAPIHandler(db, alertService, sched, engine, version).SetupRoutes(mux)
	handlers.NewAuthHandler(jwtAuthMiddleware, cfg.JWTExpiryHours).SetupRoutes(mux)

	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	sched.Stop()

	log.Println("Shutting down HTTP server...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}

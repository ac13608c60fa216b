// FacturAI - conversational billing assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facturai/facturai/internal/api"
	"github.com/facturai/facturai/internal/billing"
	"github.com/facturai/facturai/internal/channel"
	"github.com/facturai/facturai/internal/checkpoint"
	"github.com/facturai/facturai/internal/config"
	"github.com/facturai/facturai/internal/conversation"
	"github.com/facturai/facturai/internal/engine"
	"github.com/facturai/facturai/internal/identity"
	"github.com/facturai/facturai/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "session_timeout", cfg.SessionTimeout)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session database connected")

	// Checkpoint backend: schema setup stays lazy, but connectivity is
	// verified up front so a broken backend fails at boot, not mid-turn.
	checkpoints, err := checkpoint.NewPostgres(checkpoint.Config{
		Host:           cfg.Checkpoint.Host,
		Port:           cfg.Checkpoint.Port,
		DBName:         cfg.Checkpoint.DBName,
		User:           cfg.Checkpoint.User,
		Password:       cfg.Checkpoint.Password,
		ConnectOptions: cfg.Checkpoint.ConnectOptions,
	})
	if err != nil {
		slog.Error("Failed to initialize checkpoint store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := checkpoints.Close(); closeErr != nil {
			slog.Error("Failed to close checkpoint store", "error", closeErr)
		}
	}()

	if err := checkpoints.Ping(context.Background()); err != nil {
		slog.Error("Checkpoint database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Checkpoint database connected")

	engineClient, err := engine.NewClient(engine.ClientConfig{
		Address:        cfg.EngineAddr,
		RequestTimeout: cfg.EngineRequestTimeout,
	}, checkpoints, logger)
	if err != nil {
		slog.Error("Failed to connect to reasoning engine", "error", err)
		os.Exit(1)
	}

	var billingClient *billing.Client
	if cfg.Billing.Enabled() {
		billingClient, err = billing.NewClient(billing.Config{
			APIKey:    cfg.Billing.APIKey,
			APIToken:  cfg.Billing.APIToken,
			UserToken: cfg.Billing.UserToken,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize billing client", "error", err)
			os.Exit(1)
		}
		slog.Info("Billing provider configured")
	} else {
		slog.Info("Billing disabled (TUSFACTURAS_* credentials not set)")
	}

	gateway := channel.NewWhatsApp(channel.Config{
		AccessToken:   cfg.WhatsApp.AccessToken,
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
	}, logger)

	// Wire the conversation core.
	resolver := identity.NewResolver(repo)
	sessions := conversation.NewSessions(repo, cfg.SessionTimeout)
	orchestrator := conversation.NewOrchestrator(resolver, sessions, engineClient, cfg.EngineRequestTimeout, logger)

	handler := api.NewHandler(orchestrator, gateway, repo, checkpoints, billingClient, cfg.AdminAPIKey)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", api.AdminKeyHeader},
	}))

	handler.RegisterRoutes(r)

	// Create server. Engine round trips run for seconds, so the write
	// timeout must outlast the bounded engine timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.EngineRequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

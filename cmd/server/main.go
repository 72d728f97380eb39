// AI Goal Coach server
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

	"github.com/ashureev/goal-coach/internal/api"
	"github.com/ashureev/goal-coach/internal/coach"
	"github.com/ashureev/goal-coach/internal/config"
	"github.com/ashureev/goal-coach/internal/identity"
	"github.com/ashureev/goal-coach/internal/middleware"
	"github.com/ashureev/goal-coach/internal/session"
	"github.com/ashureev/goal-coach/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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
	slog.Info("Database connected")

	// Initialize the thread store.
	var sessionOpts []session.StoreOption
	if cfg.SessionBackend == string(session.BackendRedis) {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			slog.Error("Redis health check failed", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		sessionOpts = append(sessionOpts,
			session.WithRedisClient(redisClient),
			session.WithRedisTTL(cfg.SessionTTL),
		)
		slog.Info("Redis connected", "addr", cfg.RedisAddr)
	}
	threads, err := session.NewStore(session.Backend(cfg.SessionBackend), sessionOpts...)
	if err != nil {
		slog.Error("Failed to initialize thread store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := threads.Close(); closeErr != nil {
			slog.Error("Failed to close thread store", "error", closeErr)
		}
	}()
	slog.Info("Thread store ready", "backend", cfg.SessionBackend)

	// Initialize the model invoker (optional: without an API key the
	// refinement routes answer 503 and everything else still works).
	var refiner api.Refiner
	if cfg.ModelEnabled() {
		invoker, err := coach.NewGeminiInvoker(context.Background(), coach.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.Model,
			Timeout: cfg.ModelTimeout,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize Gemini invoker", "error", err)
			os.Exit(1)
		}
		refiner = coach.NewService(threads, invoker, logger)
		slog.Info("Goal refinement enabled", "model", cfg.Model)
	} else {
		slog.Info("AI features disabled (GEMINI_API_KEY not set)")
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	coachHandler := api.NewCoachHandler(baseHandler, refiner)
	healthHandler := api.NewHealthHandler(repo, cfg.ModelEnabled())
	wsHandler := api.NewRefineSocket(refiner, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	coachHandler.RegisterRoutes(r)

	// WebSocket endpoint for interactive refinement.
	r.Get("/ws/refine", wsHandler.ServeHTTP)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections
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

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

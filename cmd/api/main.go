// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/cart"
	"github.com/tekkistudio/sales-orchestrator/internal/config"
	"github.com/tekkistudio/sales-orchestrator/internal/events"
	"github.com/tekkistudio/sales-orchestrator/internal/handler"
	"github.com/tekkistudio/sales-orchestrator/internal/intent"
	"github.com/tekkistudio/sales-orchestrator/internal/knowledge"
	"github.com/tekkistudio/sales-orchestrator/internal/llm"
	"github.com/tekkistudio/sales-orchestrator/internal/middleware"
	"github.com/tekkistudio/sales-orchestrator/internal/orchestrator"
	"github.com/tekkistudio/sales-orchestrator/internal/response"
	"github.com/tekkistudio/sales-orchestrator/internal/session"
	"github.com/tekkistudio/sales-orchestrator/internal/store"
	"github.com/tekkistudio/sales-orchestrator/internal/strategy"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting sales orchestrator")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "sales-orchestrator", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the database
	db, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS when enabled. Event publishing is best-effort:
	// the orchestrator runs with a no-op publisher when the broker is
	// unavailable.
	var publisher events.Publisher = events.Nop{}
	var natsClient *events.Client
	if cfg.NATSEnabled {
		natsClient, err = events.Connect(ctx, events.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("NATS unavailable, events disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			sp, err := events.NewStreamPublisher(ctx, natsClient, log)
			if err != nil {
				log.Warn("JetStream unavailable, events disabled", zap.Error(err))
			} else {
				publisher = sp
			}
		}
	}

	// Load intent signal tables, falling back to built-ins
	tables, err := intent.LoadSignalTables(ctx, db)
	if err != nil {
		log.Warn("using built-in signal tables", zap.Error(err))
	} else {
		log.Info("loaded signal tables", zap.Int("version", tables.Version))
	}

	// Initialize the completion client
	var llmClient llm.Client
	var llmErr error
	switch {
	case cfg.DefaultLLM == "openai" && cfg.OpenAIAPIKey != "":
		llmClient, llmErr = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	case cfg.AnthropicAPIKey != "":
		llmClient, llmErr = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llmClient, llmErr = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	if llmErr != nil {
		log.Warn("completion client unavailable, templates only", zap.Error(llmErr))
		llmClient = nil
	}
	completer := llm.NewStructured(llmClient, cfg.CompletionTimeout, cfg.CompletionTokens)
	log.Info("completion provider", zap.String("provider", completer.Provider()))

	// Initialize the pipeline. Evicting a session also releases its
	// in-memory cart; the persisted copies of both survive.
	carts := cart.NewService(db, log)
	sessions := session.NewStore(db, session.Options{
		CacheCapacity: cfg.SessionCacheCapacity,
		InactivityTTL: cfg.SessionInactivityTTL,
		OnEvict:       carts.Evict,
	}, log)
	defer sessions.Close()
	generator := response.NewGenerator(completer, log)

	orch := orchestrator.New(
		sessions,
		carts,
		intent.NewScorer(tables),
		knowledge.NewIndex(db, cfg.KnowledgeTTL, log),
		strategy.NewSelector(),
		generator,
		publisher,
		orchestrator.Options{
			ProductName:  cfg.ProductName,
			ProductPrice: cfg.ProductPrice,
			Currency:     cfg.Currency,
			DeliveryCost: cfg.DeliveryCost,
		},
		log,
	)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, natsClient)
	chatHandler := handler.NewChatHandler(orch, log)
	sessionHandler := handler.NewSessionHandler(orch, carts, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Session-ID"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/chat", chatHandler.Send)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", chatHandler.Init)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Reset)

				r.Get("/cart", sessionHandler.GetCart)

				// Direct cart mutations require the write scope; the
				// conversational flow mutates the cart server-side and
				// is unaffected.
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireScope("cart:write"))
					r.Delete("/cart", sessionHandler.ClearCart)
					r.Post("/cart/items", sessionHandler.AddCartItem)
					r.Put("/cart/items/{productID}", sessionHandler.SetCartItem)
				})
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

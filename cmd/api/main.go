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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/config"
	"github.com/omadligroup/ai-agent-api/internal/handler"
	"github.com/omadligroup/ai-agent-api/internal/middleware"
	natsclient "github.com/omadligroup/ai-agent-api/internal/nats"
	"github.com/omadligroup/ai-agent-api/internal/rag"
	"github.com/omadligroup/ai-agent-api/internal/scheduler"
	"github.com/omadligroup/ai-agent-api/internal/service"
	"github.com/omadligroup/ai-agent-api/internal/storage"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
	"github.com/omadligroup/ai-agent-api/pkg/tracing"
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

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ai-agent-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the database
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize file storage
	localStorage, err := storage.NewLocal(cfg.StorageRoot)
	if err != nil {
		log.Error("failed to initialize storage", zap.Error(err))
		os.Exit(1)
	}

	// Connect to NATS. The analytics pipeline degrades to direct database
	// writes when the broker is unreachable, so a failed connection is not
	// fatal here. /ready still reports it.
	var events service.EventPublisher
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("failed to connect to NATS, analytics pipeline disabled", zap.Error(err))
	} else {
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure analytics stream", zap.Error(err))
			os.Exit(1)
		}
		events = streamManager

		go func() {
			if err := streamManager.RunConsumer(consumerCtx, db); err != nil {
				log.Error("analytics consumer stopped", zap.Error(err))
			}
		}()
	}

	// Initialize the RAG webhook client
	ragClient := rag.NewClient(cfg.RAGWebhookURL, cfg.RAGFeedbackURL, cfg.RAGAnalyticsURL, cfg.RAGTimeout, log)

	// Initialize services
	authSvc := service.NewAuthService(db, events, log, cfg.JWTSecret, cfg.JWTExpiration, cfg.RefreshExpiration)
	chatSvc := service.NewChatService(db, ragClient, events, log)
	fileSvc := service.NewFileService(db, localStorage, events, log, cfg.MaxUploadSize, cfg.DownloadURLSecret, cfg.DownloadURLTTL)
	analyticsSvc := service.NewAnalyticsService(db, events, log, cfg.ReportsRoot)

	// Start background jobs
	sched, err := scheduler.New(db, log, cfg.EventRetentionDays)
	if err != nil {
		log.Error("failed to create scheduler", zap.Error(err))
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, natsClient, sched)
	authHandler := handler.NewAuthHandler(authSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	fileHandler := handler.NewFileHandler(fileSvc, cfg.MaxUploadSize, log)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Registration, login and token refresh are unauthenticated.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/token/refresh", authHandler.Refresh)
		})

		// Signed download links carry their own authorization.
		r.Get("/files/{id}/raw", fileHandler.DownloadRaw)

		// Everything else requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			// Account
			r.Route("/auth", func(r chi.Router) {
				r.Post("/logout", authHandler.Logout)
				r.Get("/profile", authHandler.Profile)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Patch("/profile", authHandler.UpdateProfile)
				r.Post("/change-password", authHandler.ChangePassword)
				r.Post("/subscription/cancel", authHandler.CancelSubscription)
				r.Get("/client-info", authHandler.ClientInfo)
				r.Put("/client-info", authHandler.UpdateClientInfo)
				r.Get("/client-info/status", authHandler.ClientInfoStatus)
				r.Get("/stats", authHandler.Stats)
				r.Get("/sessions", authHandler.Sessions)
				r.Get("/payments", authHandler.Payments)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin())
					r.Get("/users", authHandler.ListUsers)
					r.Route("/users/{id}", func(r chi.Router) {
						r.Get("/", authHandler.GetUser)
						r.Put("/", authHandler.UpdateUser)
						r.Delete("/", authHandler.DeleteUser)
						r.Post("/upgrade-subscription", authHandler.UpgradeUserSubscription)
						r.Get("/client-info", authHandler.UserClientInfo)
					})
				})
			})

			// Chat
			r.Route("/chat", func(r chi.Router) {
				r.Post("/", chatHandler.SendMessage)
				r.Post("/stream", chatHandler.StreamMessage)

				r.Route("/conversations", func(r chi.Router) {
					r.Get("/", chatHandler.ListConversations)
					r.Post("/clear-all", chatHandler.ClearAll)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", chatHandler.GetConversation)
						r.Put("/", chatHandler.UpdateConversation)
						r.Patch("/", chatHandler.UpdateConversation)
						r.Delete("/", chatHandler.DeleteConversation)
						r.Get("/history", chatHandler.History)
						r.Get("/rag-history", chatHandler.RAGHistory)
						r.Get("/export", chatHandler.ExportConversation)
						r.Post("/archive", chatHandler.Archive)
						r.Post("/pin", chatHandler.Pin)
						r.Post("/move", chatHandler.Move)
					})
				})

				r.Post("/messages/{id}/feedback", chatHandler.Feedback)
				r.Post("/feedback", chatHandler.SubmitFeedback)

				r.Route("/folders", func(r chi.Router) {
					r.Get("/", chatHandler.ListFolders)
					r.Post("/", chatHandler.CreateFolder)
					r.Get("/{id}", chatHandler.GetFolder)
					r.Put("/{id}", chatHandler.UpdateFolder)
					r.Delete("/{id}", chatHandler.DeleteFolder)
					r.Get("/{id}/conversations", chatHandler.FolderConversations)
				})

				r.Route("/templates", func(r chi.Router) {
					r.Get("/", chatHandler.ListTemplates)
					r.With(middleware.RequireAdmin()).Post("/", chatHandler.CreateTemplate)
					r.Get("/{id}", chatHandler.GetTemplate)
					r.Put("/{id}", chatHandler.UpdateTemplate)
					r.Delete("/{id}", chatHandler.DeleteTemplate)
				})

				r.Get("/stats", chatHandler.Stats)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin())
					r.Get("/feedbacks", chatHandler.ListFeedbacks)
					r.Get("/feedback/analytics", chatHandler.FeedbackAnalytics)
					r.Get("/admin/analytics", chatHandler.AdminAnalytics)
				})
			})

			// Files
			r.Route("/files", func(r chi.Router) {
				r.Post("/upload", fileHandler.Upload)
				r.Get("/", fileHandler.List)
				r.Post("/bulk-action", fileHandler.Bulk)
				r.Post("/share", fileHandler.Share)
				r.Get("/shares", fileHandler.Shares)
				r.Delete("/shares/{id}", fileHandler.Unshare)
				r.Get("/shared-with-me", fileHandler.SharedWithMe)
				r.Get("/stats", fileHandler.Stats)

				r.With(middleware.RequireAdmin()).Get("/admin/analytics", fileHandler.AdminAnalytics)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", fileHandler.Get)
					r.Patch("/", fileHandler.Update)
					r.Delete("/", fileHandler.Delete)
					r.Get("/download", fileHandler.Download)
					r.Get("/download-url", fileHandler.DownloadURL)
					r.Get("/shares", fileHandler.FileShares)
					r.Get("/versions", fileHandler.Versions)
					r.Post("/versions", fileHandler.UploadVersion)
					r.Get("/comments", fileHandler.Comments)
					r.Post("/comments/add", fileHandler.AddComment)
				})
			})

			// Analytics
			r.Route("/analytics", func(r chi.Router) {
				r.Post("/events/track", analyticsHandler.Track)
				r.Get("/activity", analyticsHandler.Activity)
				r.Get("/activity/stats", analyticsHandler.ActivityStats)
				r.Post("/errors/log", analyticsHandler.LogError)
				r.Get("/user-dashboard-stats", analyticsHandler.UserDashboard)

				r.Route("/reports", func(r chi.Router) {
					r.Post("/", analyticsHandler.CreateReport)
					r.Get("/", analyticsHandler.Reports)
					r.Get("/{id}", analyticsHandler.Report)
					r.Get("/{id}/download", analyticsHandler.DownloadReport)
					r.Delete("/{id}", analyticsHandler.DeleteReport)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin())
					r.Get("/events", analyticsHandler.Events)
					r.Get("/dashboard", analyticsHandler.Dashboard)
					r.Get("/metrics", analyticsHandler.SystemMetrics)
					r.Post("/metrics/generate", analyticsHandler.GenerateMetrics)
					r.Get("/health", healthHandler.System)
					r.Get("/scheduler", healthHandler.Scheduler)
					r.Get("/errors", analyticsHandler.ErrorLogs)
					r.Get("/errors/stats", analyticsHandler.ErrorStats)
					r.Get("/errors/{id}", analyticsHandler.GetErrorLog)
					r.Post("/errors/{id}/resolve", analyticsHandler.ResolveError)
					r.Get("/subscription-stats", analyticsHandler.SubscriptionStats)
					r.Get("/payment-stats", analyticsHandler.PaymentStats)
					r.Get("/users-list-stats", analyticsHandler.UsersListStats)
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

	stopConsumer()
	log.Info("server stopped")
}

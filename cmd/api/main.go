package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kopesha/kopesha-api/docs" // Swagger docs
	"github.com/kopesha/kopesha-api/internal/cache"
	"github.com/kopesha/kopesha-api/internal/config"
	"github.com/kopesha/kopesha-api/internal/database"
	"github.com/kopesha/kopesha-api/internal/handlers"
	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/middleware"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/services"
	"github.com/kopesha/kopesha-api/internal/storage"
	"github.com/kopesha/kopesha-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title Kopesha API
// @version 1.0
// @description REST API for the Kopesha microfinance back office

// @contact.name API Support
// @contact.email support@kopesha.app

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Warn if Resend email is not configured
	if cfg.ResendAPIKey == "" || cfg.FromEmail == "" {
		logger.Warn("Resend email disabled: RESEND_API_KEY or FROM_EMAIL not set. Set them in .env and ensure the From domain is verified in Resend dashboard.")
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage")

	// Connect to redis, falling back to an in-process cache
	var appCache cache.Cache
	redisCache, err := cache.NewRedisCache(cfg.RedisAddr)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		appCache = cache.NewMemoryCache()
	} else {
		logger.Info("Connected to redis", "addr", cfg.RedisAddr)
		appCache = redisCache
		defer redisCache.Close()
	}

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, store, appCache, cfg, db)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs, cfg)

	// Initialize handlers
	h := handlers.NewHandlers(svcs)

	// Setup router
	router := setupRouter(h, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown background worker
	worker.Shutdown()
	logger.Info("Background worker stopped")

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Uploaded KYC photos and loan documents
	router.Static("/uploads", cfg.StoragePath+"/uploads")

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Redirect root to swagger
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})

		// Swagger documentation
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Authentication (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
			auth.POST("/logout", h.Auth.Logout)
		}

		// Password recovery (public)
		v1.POST("/users/send_recovery_code", h.User.SendRecoveryCode)
		v1.POST("/users/verify_recovery_code", h.User.VerifyRecoveryCode)
		v1.POST("/users/update_password_with_code", h.User.UpdatePasswordWithCode)

		// M-Pesa result callback (public, called by Safaricom)
		v1.POST("/mpesa/callback", h.Mpesa.Callback)

		// Protected routes (requires authentication)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			// Admin-only routes
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				// User management (admin only; PUT /users/:user_id is below for admin or owner)
				admin.DELETE("/users/:user_id", h.User.Delete)
				admin.PUT("/users/:user_id/toggle_status", h.User.ToggleStatus)
				admin.POST("/users/:user_id/restore", h.User.Restore)

				// Loan decisions and funding (admin only)
				admin.POST("/loans/:loan_id/approve", h.Loan.Approve)
				admin.POST("/loans/:loan_id/disburse", h.Loan.Disburse)
				admin.PUT("/loans/:loan_id/assign_officer", h.Loan.AssignOfficer)
				admin.POST("/loans/bulk_advance", h.Loan.BulkAdvance)

				// Product catalogue management (admin only)
				admin.POST("/products", h.Product.Create)
				admin.PUT("/products/:product_id", h.Product.Update)
				admin.DELETE("/products/:product_id", h.Product.Delete)

				// Funding sources (admin only)
				admin.GET("/payment_sources", h.PaymentSource.Index)
				admin.GET("/payment_sources/fundable", h.PaymentSource.Fundable)
				admin.GET("/payment_sources/:source_id", h.PaymentSource.Show)
				admin.POST("/payment_sources", h.PaymentSource.Create)
				admin.PUT("/payment_sources/:source_id", h.PaymentSource.Update)
				admin.POST("/payment_sources/:source_id/top_up", h.PaymentSource.TopUp)
				admin.PUT("/payment_sources/:source_id/toggle_status", h.PaymentSource.ToggleStatus)
				admin.DELETE("/payment_sources/:source_id", h.PaymentSource.Delete)

				// Group deletion (admin only)
				admin.DELETE("/groups/:group_id", h.Group.Delete)

				// Audit trail (admin only)
				admin.GET("/audit_logs", h.Audit.Index)
				admin.GET("/audit_logs/:entity/:entity_id", h.Audit.ForEntity)

				// Officer performance and worker stats (admin only)
				admin.GET("/analytics/officers", h.Analytics.OfficerPerformance)
				admin.POST("/analytics/refresh", h.Analytics.Refresh)
				admin.GET("/jobs/status", h.Job.GetStatus)
			}

			// User data access (Admin, Officer, or Owner)
			userData := protected.Group("/users/:user_id")
			userData.Use(middleware.RequireAdminOfficerOrOwner())
			{
				userData.GET("", h.User.Show)
				userData.GET("/loans", h.User.Loans)
				userData.POST("/photo", h.User.UploadPhoto)
			}

			// Officer + Admin routes (daily portfolio work)
			officerAdmin := protected.Group("")
			officerAdmin.Use(middleware.RequireRole("admin", "officer"))
			{
				// User viewing and client registration
				officerAdmin.GET("/users", h.User.Index)
				officerAdmin.POST("/users", h.User.Create)

				// Loan workflow
				officerAdmin.GET("/loans/stats", h.Loan.GetStats)
				officerAdmin.POST("/loans/:loan_id/review", h.Loan.Review)
				officerAdmin.POST("/loans/:loan_id/escalate", h.Loan.Escalate)
				officerAdmin.POST("/loans/:loan_id/reject", h.Loan.Reject)
				officerAdmin.POST("/loans/:loan_id/activate", h.Loan.Activate)
				officerAdmin.POST("/loans/:loan_id/documents", h.Loan.UploadDocument)
				officerAdmin.GET("/loans/:loan_id/documents", h.Loan.Documents)

				// Repayments
				officerAdmin.GET("/repayments", h.Repayment.Index)
				officerAdmin.GET("/repayments/stats", h.Repayment.Stats)
				officerAdmin.GET("/repayments/:repayment_id", h.Repayment.Show)
				officerAdmin.POST("/repayments", h.Repayment.Create)

				// M-Pesa collections
				officerAdmin.POST("/mpesa/stk_push", h.Mpesa.StkPush)
				officerAdmin.GET("/loans/:loan_id/mpesa_transactions", h.Mpesa.IndexByLoan)

				// Lending groups
				officerAdmin.POST("/groups", h.Group.Create)
				officerAdmin.PUT("/groups/:group_id", h.Group.Update)
				officerAdmin.POST("/groups/:group_id/members", h.Group.AddMember)
				officerAdmin.DELETE("/groups/:group_id/members/:user_id", h.Group.RemoveMember)

				// SMS campaigns
				officerAdmin.GET("/sms_campaigns", h.Sms.Index)
				officerAdmin.GET("/sms_campaigns/:campaign_id", h.Sms.Show)
				officerAdmin.GET("/sms_campaigns/:campaign_id/messages", h.Sms.Messages)
				officerAdmin.POST("/sms_campaigns", h.Sms.Create)
				officerAdmin.POST("/sms_campaigns/:campaign_id/schedule", h.Sms.Schedule)
				officerAdmin.DELETE("/sms_campaigns/:campaign_id", h.Sms.Delete)

				// Analytics (officers can view the portfolio)
				officerAdmin.GET("/analytics", h.Analytics.Overview)
				officerAdmin.GET("/analytics/export", h.Analytics.Export)
				officerAdmin.GET("/analytics/loan_book", h.Analytics.LoanBookXLSX)

				// Reports
				officerAdmin.GET("/reports/arrears", h.Report.ArrearsCSV)
				officerAdmin.GET("/reports/collections", h.Report.CollectionsCSV)
			}

			// All authenticated users
			// Profile update: admin or profile owner only (officers cannot edit other users' profiles)
			protected.PUT("/users/:user_id", middleware.RequireAdminOrOwner(), h.User.Update)
			protected.PATCH("/users/:user_id/change_password", h.User.ChangePassword)
			protected.POST("/users/:user_id/resend_confirmation", h.User.ResendConfirmation)
			protected.PATCH("/users/:user_id/update_locale", h.User.UpdateLocale)

			// Product catalogue viewing (clients pick a product when applying)
			protected.GET("/products", h.Product.Index)
			protected.GET("/products/active", h.Product.Active)
			protected.GET("/products/:product_id", h.Product.Show)

			// Loans (clients see their own; officers and admins see all)
			protected.GET("/loans", h.Loan.Index)
			protected.GET("/loans/:loan_id", h.Loan.Show)
			protected.POST("/loans", h.Loan.Apply)
			protected.GET("/loans/:loan_id/repayments", h.Repayment.IndexByLoan)
			protected.GET("/loans/:loan_id/statement", h.Report.LoanStatementPDF)
			protected.GET("/loans/:loan_id/agreement", h.Report.LoanAgreementPDF)

			// Group viewing
			protected.GET("/groups", h.Group.Index)
			protected.GET("/groups/:group_id", h.Group.Show)
			protected.GET("/groups/:group_id/members", h.Group.Members)
			protected.GET("/groups/:group_id/loans", h.Group.Loans)

			// Notifications (users manage their own)
			// Static route first so "mark_all_read" is not matched as :notification_id
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", h.Notification.Index)
				notifications.PUT("/mark_all_read", h.Notification.MarkAllAsRead)
				notifications.PUT("/:notification_id/read", h.Notification.MarkAsRead)
				notifications.DELETE("/:notification_id", h.Notification.Delete)
			}
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	// Sweep loans for missed installments every hour
	worker.ScheduleEveryImmediate(1*time.Hour, func(ctx context.Context) error {
		logger.Info("[Job] Updating arrears flags...")
		return svcs.Loan.UpdateArrears(ctx)
	})

	// Update credit scores every 6 hours
	worker.ScheduleEvery(6*time.Hour, func(ctx context.Context) error {
		logger.Info("[Job] Updating credit scores...")
		return svcs.CreditScore.UpdateAllScores(ctx)
	})

	// Refresh analytics cache every 15 minutes
	worker.ScheduleEvery(15*time.Minute, func(ctx context.Context) error {
		logger.Info("[Job] Refreshing analytics cache...")
		return svcs.Analytics.RefreshCache(ctx)
	})

	// Dispatch scheduled SMS campaigns every minute
	worker.ScheduleEvery(1*time.Minute, func(ctx context.Context) error {
		return svcs.Sms.DispatchDue(ctx)
	})

	// Daily SMS reminders for installments due soon
	worker.ScheduleEvery(24*time.Hour, func(ctx context.Context) error {
		logger.Info("[Job] Sending payment reminder SMS...")
		sent, err := svcs.Sms.SendPaymentReminders(ctx)
		if err != nil {
			return err
		}
		logger.Info("[Job] Payment reminders sent", "count", sent)
		return nil
	})

	// Expire abandoned STK pushes so clients can retry
	if cfg.MpesaEnabled {
		worker.ScheduleEvery(10*time.Minute, func(ctx context.Context) error {
			expired, err := svcs.Mpesa.ExpireStalePending(ctx, 15)
			if err != nil {
				return err
			}
			if expired > 0 {
				logger.Info("[Job] Expired stale M-Pesa requests", "count", expired)
			}
			return nil
		})
	}

	logger.Info("Scheduled recurring jobs")
}

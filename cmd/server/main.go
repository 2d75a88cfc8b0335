package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/villagefund/backend/docs"
	"github.com/villagefund/backend/internal/database"
	"github.com/villagefund/backend/internal/handlers"
	mW "github.com/villagefund/backend/internal/middleware"
	"github.com/villagefund/backend/internal/services"
)

// @title Village Fund Backend API
// @version 1.0
// @description API for the village savings cooperative fund
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Village Fund Backend API"
	docs.SwaggerInfo.Description = "API for the village savings cooperative fund"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	auditService := services.NewAuditService(db)
	watchService := services.NewWatchService(redisClient)
	authService := services.NewAuthService(db, redisClient)
	memberService := services.NewMemberService(db, auditService)
	transactionService := services.NewTransactionService(db, redisClient, watchService)
	approvalService := services.NewApprovalService(db, redisClient, auditService, watchService)
	dividendService := services.NewDividendService(db, auditService)
	statsService := services.NewStatsService(db)
	reportService := services.NewReportService(db)
	qrService := services.NewQRService(db)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/members/me", memberService.GetProfile)
			r.Put("/members/me", memberService.UpdateProfile)
			r.Get("/members/me/eligibility", dividendService.MemberEligibility)
			r.Get("/members/me/dividends", dividendService.MemberDividends)

			r.Post("/transactions", transactionService.Submit)
			r.Get("/transactions", transactionService.History)
			r.Get("/transactions/recent", transactionService.Recent)
			r.Get("/transactions/{id}", transactionService.Get)
			r.Get("/transactions/{id}/qr", qrHandler.TransactionQR)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly(db))

				r.Get("/admin/stats", statsService.Overview)
				r.Get("/admin/pending", approvalService.ListPending)
				r.Get("/admin/pending/watch", watchService.StreamPending)

				r.Post("/admin/transactions/{id}/approve", approvalService.Approve)
				r.Post("/admin/transactions/{id}/reject", approvalService.Reject)
				r.Post("/admin/transactions/bulk-approve", approvalService.BulkApprove)
				r.Post("/admin/transactions/bulk-reject", approvalService.BulkReject)

				r.Get("/admin/members", memberService.List)
				r.Get("/admin/members/{id}", memberService.Get)
				r.Post("/admin/members/{id}/balance", memberService.AdjustBalance)

				r.Get("/admin/settings", dividendService.GetSettings)
				r.Put("/admin/settings", dividendService.SaveSettings)
				r.Post("/admin/dividends/preview", dividendService.Preview)
				r.Post("/admin/dividends/distribute", dividendService.Distribute)

				r.Get("/admin/reports/transactions.csv", reportService.ExportTransactionsCSV)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

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

	"github.com/cashquest/backend/docs"
	"github.com/cashquest/backend/internal/audit"
	"github.com/cashquest/backend/internal/database"
	"github.com/cashquest/backend/internal/events"
	"github.com/cashquest/backend/internal/handlers"
	mW "github.com/cashquest/backend/internal/middleware"
	"github.com/cashquest/backend/internal/notifier"
	"github.com/cashquest/backend/internal/scheduler"
	"github.com/cashquest/backend/internal/services"
)

// @title CashQuest Rewards API
// @version 1.0
// @description API for the CashQuest task rewards platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

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

	viper.BindEnv("rewards.signup_bonus", "REWARDS_SIGNUP_BONUS")
	viper.BindEnv("rewards.first_task_bonus", "REWARDS_FIRST_TASK_BONUS")
	viper.BindEnv("rewards.min_withdrawal", "REWARDS_MIN_WITHDRAWAL")

	viper.BindEnv("admin.access_key", "ADMIN_ACCESS_KEY")
	viper.BindEnv("app.base_url", "APP_BASE_URL")

	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Reward amounts are stored in paise.
	viper.SetDefault("rewards.signup_bonus", 500)
	viper.SetDefault("rewards.first_task_bonus", 1000)
	viper.SetDefault("rewards.min_withdrawal", 5000)
	viper.SetDefault("app.base_url", "http://localhost:8080")

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "CashQuest Rewards API"
	docs.SwaggerInfo.Description = "API for the CashQuest task rewards platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger()
	broker := events.NewBroker()
	telegram := notifier.NewTelegram(
		viper.GetString("telegram.bot_token"),
		viper.GetInt64("telegram.chat_id"),
	)

	// Initialize services
	ledgerService := services.NewLedgerService(db, auditLogger, broker)
	authService := services.NewAuthService(db, redisClient, ledgerService, telegram)
	taskService := services.NewTaskService(db, ledgerService, broker, telegram)
	withdrawalService := services.NewWithdrawalService(db, ledgerService, broker, telegram)
	checkinService := services.NewCheckinService(db, redisClient, ledgerService, broker)
	bonusService := services.NewBonusService(db, ledgerService, auditLogger, telegram)
	referralService := services.NewReferralService(db)
	adminService := services.NewAdminService(db, ledgerService, telegram)

	referralHandler := handlers.NewReferralHandler(referralService)
	streamHandler := handlers.NewStreamHandler(broker)

	// Background jobs
	taskExpiry, err := scheduler.NewTaskExpiry(db)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}
	if err := taskExpiry.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer taskExpiry.Stop()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
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
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/auth/register", authService.Register)
			r.Post("/auth/login", authService.Login)
			r.Post("/auth/logout", authService.Logout)
		})

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/profile", authService.GetProfile)
			r.Put("/auth/profile", authService.UpdateProfile)
			r.Delete("/auth/profile", authService.DeleteAccount)

			r.Get("/wallet", ledgerService.GetWallet)
			r.Get("/wallet/entries", ledgerService.ListEntries)

			r.Get("/tasks", taskService.ListTasks)
			r.Get("/tasks/{taskId}", taskService.GetTask)
			r.Post("/tasks/{taskId}/submit", taskService.SubmitTask)
			r.Get("/submissions", taskService.ListMySubmissions)

			r.Get("/withdrawals", withdrawalService.ListMyWithdrawals)
			r.Post("/withdrawals", withdrawalService.RequestWithdrawal)

			r.Get("/checkin", checkinService.GetStatus)
			r.Post("/checkin", checkinService.Claim)

			r.Get("/referrals", referralHandler.GetSummary)
			r.Get("/referrals/qr", referralHandler.GetInviteQR)
		})

		// Event stream stays open, so no request timeout here.
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/stream", streamHandler.Stream)
		})

		// Admin endpoints (auth plus admin access key)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(mW.AuthMiddleware)
			r.Use(mW.AdminMiddleware)

			r.Get("/admin/users", adminService.ListUsers)
			r.Put("/admin/users/{userId}/verify", adminService.SetVerified)
			r.Post("/admin/users/{userId}/balance", adminService.AdjustBalance)
			r.Get("/admin/users/{userId}/entries", adminService.ListUserEntries)
			r.Delete("/admin/users/{userId}", adminService.DeleteUser)

			r.Post("/admin/tasks", taskService.CreateTask)
			r.Put("/admin/tasks/{taskId}/status", taskService.SetTaskStatus)
			r.Delete("/admin/tasks/{taskId}", taskService.DeleteTask)

			r.Get("/admin/submissions", taskService.ListPendingSubmissions)
			r.Put("/admin/submissions/{submissionId}/review", taskService.ReviewSubmission)

			r.Get("/admin/withdrawals", withdrawalService.ListPendingWithdrawals)
			r.Put("/admin/withdrawals/{withdrawalId}/process", withdrawalService.ProcessWithdrawal)

			r.Post("/admin/bonus", bonusService.DistributeBonus)
			r.Get("/admin/stats", adminService.GetStats)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server. WriteTimeout stays unset so SSE connections are not cut off.
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
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

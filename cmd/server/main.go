package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/crosspost-labs/crosspost/configs"
	"github.com/crosspost-labs/crosspost/internal/api/handlers"
	"github.com/crosspost-labs/crosspost/internal/api/middleware"
	job "github.com/crosspost-labs/crosspost/internal/jobs"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/internal/queue"
	"github.com/crosspost-labs/crosspost/internal/ratelimit"
	"github.com/crosspost-labs/crosspost/internal/repository"
	"github.com/crosspost-labs/crosspost/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		BodyLimit:    32 * 1024 * 1024, // 32 MB, enough for staged images
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Service-Key",
		MaxAge:       3600,
	}))

	accountRepo := repository.NewAccountRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	stateRepo := repository.NewOAuthStateRepository(db)
	postRepo := repository.NewPostRepository(db)

	providers := provider.NewRegistry(*cfg)

	credentialService := service.NewCredentialService(*cfg, credentialRepo, providers)
	oauthService := service.NewOAuthService(*cfg, stateRepo, credentialService, providers)
	accountService := service.NewAccountService(accountRepo)
	postService := service.NewPostService(postRepo, accountRepo, providers)
	mediaService := service.NewMediaService(*cfg)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	oauth := handlers.NewOAuthHandler(oauthService)
	app.Get("/oauth/:provider/auth", oauth.Authorize)
	app.Get("/oauth/:provider/callback", oauth.Callback)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.PostStatus)
	api.Post("/posts/cancel", post.CancelPost)

	account := handlers.NewAccountHandler(accountService)
	api.Post("/accounts", account.CreateAccount)
	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/primary", account.SetPrimary)
	api.Post("/accounts/active", account.SetActive)
	api.Post("/accounts/:id/disconnect", oauth.Disconnect)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media", media.StageMedia)

	// background loops
	limiter := ratelimit.New(cfg.RateLimitPostsPerHour, cfg.RateLimitPostsPerDay)
	enqueuer := queue.NewAsynqEnqueuer(client)
	dispatcher := queue.NewDispatcher(postRepo, accountRepo, limiter, enqueuer, cfg.DispatchConcurrency)
	worker := queue.NewWorker(postRepo, credentialService, providers, cfg.PublishMaxAttempts, cfg.PublishRetryBackoff)

	refreshTokenJob := job.NewTokenRefreshJob(
		credentialService,
		job.NewLogNotifier(),
		cfg.RefreshThreshold,
		cfg.RefreshRetryAttempts,
		cfg.RefreshRetryBackoff,
	)
	stateCleanupJob := job.NewStateCleanupJob(stateRepo)

	c := cron.New()
	c.AddFunc(fmt.Sprintf("@every %s", cfg.DispatchInterval), dispatcher.Tick)
	c.AddFunc(fmt.Sprintf("@every %s", cfg.RefreshInterval), refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 01h00m00s", stateCleanupJob.Cleanup)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.DispatchConcurrency,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, worker.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}

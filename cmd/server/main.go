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

	config "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/api/handlers"
	"github.com/postpilot/postpilot/internal/api/middleware"
	"github.com/postpilot/postpilot/internal/engine"
	"github.com/postpilot/postpilot/internal/queue"
	"github.com/postpilot/postpilot/internal/repository"
	"github.com/postpilot/postpilot/internal/service"
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
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	rowRepo := repository.NewRowRepository(db)
	rowMediaRepo := repository.NewRowMediaRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	attemptRepo := repository.NewPublishAttemptRepository(db)

	r2Service := service.NewR2Service(*cfg)
	imageGen := service.NewImageGenService(*cfg)
	adapter := service.NewInstagramAdapter(*cfg)
	resolver := service.NewMediaResolver(*cfg, imageGen, r2Service, rowMediaRepo)
	rowService := service.NewRowService(*cfg, db, rowRepo, rowMediaRepo, socialAccountRepo, r2Service)
	settingsService := service.NewSettingsService(settingsRepo)

	executor := engine.NewExecutor(*cfg, rowRepo, rowMediaRepo, socialAccountRepo, attemptRepo, resolver, adapter)
	dispatch := service.NewDispatchCoordinator(*cfg, rowRepo, rowMediaRepo, settingsRepo, executor, client)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	row := handlers.NewRowHandler(rowService, dispatch)
	api.Post("/plans/create", row.CreatePlan)
	api.Post("/rows/create", row.CreateRow)
	api.Post("/rows/submit", row.Submit)
	api.Get("/rows", row.ListRows)
	api.Post("/rows/cancel", row.CancelRow)
	api.Post("/rows/edit", row.EditRow)
	api.Post("/rows/remove", row.RemoveRow)

	settings := handlers.NewSettingsHandler(settingsService)
	api.Get("/settings/info", settings.GetSettingsInfo)
	api.Post("/settings/update", settings.UpdateSettings)

	account := handlers.NewAccountHandler(socialAccountRepo)
	api.Get("/accounts", account.ListSocialAccounts)

	// sweep catches rows whose queue task was lost or whose lease expired
	sweep := engine.NewSweep(rowRepo, executor, cfg.Scheduler.DispatchLimit)

	c := cron.New()
	c.AddFunc(fmt.Sprintf("@every %s", cfg.Scheduler.PollInterval), sweep.Run)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Scheduler.DispatchLimit,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishRow, executor.HandlePublishRowTask)

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

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"deployer-backend/cmd"
	"deployer-backend/internal/api"
	"deployer-backend/internal/database"
	"deployer-backend/internal/messaging"
	"deployer-backend/internal/pipeline"
)

type Config struct {
	Root          string `env:"ROOT" envDefault:"./deployer"`
	Port          int    `env:"PORT" envDefault:"8000"`
	StudentSecret string `env:"STUDENT_SECRET,notEmpty,required"`
	Concurrency   int    `env:"CONCURRENCY" envDefault:"2"`

	Pipeline cmd.PipelineConfig
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "deployer.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// createQueue republishes tasks that were still queued when the process last
// stopped, so an interrupted deployment resumes on boot.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	var pending []database.Task
	if err := db.Where("status = ?", database.TaskQueued).Find(&pending).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	for _, task := range pending {
		if err := queue.PublishDeployTask(context.Background(), messaging.DeployTaskPayload{
			TaskId: task.Id,
		}); err != nil {
			log.Fatalf("Failed to requeue deploy task: %v", err)
		}
	}
	if len(pending) > 0 {
		slog.Info("requeued pending tasks", "count", len(pending))
	}

	return queue
}

func createServer(db *gorm.DB, queue messaging.Publisher, port int, secret string) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	apiHandler := api.NewBackendService(db, queue, secret)
	apiHandler.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port)

	db := createDatabase(cfg.Root)
	queue := createQueue(db)

	if cfg.Pipeline.ArchiveDir == "" && cfg.Pipeline.S3EndpointURL == "" && cfg.Pipeline.S3Region == "" {
		cfg.Pipeline.ArchiveDir = filepath.Join(cfg.Root, "archives")
	}

	orchestrator := cmd.CreateOrchestrator(db, cfg.Pipeline)
	worker := pipeline.NewTaskProcessor(queue, orchestrator, cfg.Concurrency)

	server := createServer(db, queue, cfg.Port, cfg.StudentSecret)

	slog.Info("starting worker")
	worker.Start()

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}

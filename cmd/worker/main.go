package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"deployer-backend/cmd"
	"deployer-backend/internal/database"
	"deployer-backend/internal/messaging"
	"deployer-backend/internal/pipeline"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"2"`

	Pipeline cmd.PipelineConfig
}

func main() {
	log.Println("Starting Worker...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	orchestrator := cmd.CreateOrchestrator(db, cfg.Pipeline)
	worker := pipeline.NewTaskProcessor(receiver, orchestrator, cfg.Concurrency)

	worker.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker")
	worker.Stop()
	slog.Info("worker stopped")
}

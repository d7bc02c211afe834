package cmd

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"deployer-backend/internal/attachments"
	"deployer-backend/internal/ghpages"
	"deployer-backend/internal/llm"
	"deployer-backend/internal/pipeline"
	"deployer-backend/internal/sitegen"
	"deployer-backend/internal/storage"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// PipelineConfig holds the settings shared by every binary that runs the
// deployment pipeline.
type PipelineConfig struct {
	LLMProvider    string  `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey   string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string  `env:"OPENAI_BASE_URL"`
	ModelName      string  `env:"MODEL_NAME" envDefault:"gpt-4o-mini"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE" envDefault:"0"`
	LLMMaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"8000"`

	GithubToken  string `env:"GITHUB_TOKEN,notEmpty,required"`
	GithubOwner  string `env:"GITHUB_OWNER,notEmpty,required"`
	GithubAPIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`

	ArchiveBucket     string `env:"ARCHIVE_BUCKET" envDefault:"site-archives"`
	ArchiveDir        string `env:"ARCHIVE_DIR"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3Region          string `env:"AWS_REGION"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

func CreateLLMClient(cfg PipelineConfig) llm.LLM {
	llmCfg := llm.Config{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.ModelName,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}

	switch cfg.LLMProvider {
	case "gateway":
		return llm.NewGateway(llmCfg)
	case "openai", "":
		return llm.NewOpenAI(llmCfg)
	default:
		log.Fatalf("invalid LLM_PROVIDER %q, must be 'openai' or 'gateway'", cfg.LLMProvider)
		return nil
	}
}

// CreateArchiver picks the object store from config: S3 when an endpoint or
// region is set, local filesystem when ARCHIVE_DIR is set, else no archival.
func CreateArchiver(cfg PipelineConfig) *pipeline.Archiver {
	var store storage.ObjectStore
	var err error

	if cfg.S3EndpointURL != "" || cfg.S3Region != "" {
		store, err = storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create s3 object store: %v", err)
		}
	} else if cfg.ArchiveDir != "" {
		store, err = storage.NewLocalObjectStore(cfg.ArchiveDir)
		if err != nil {
			log.Fatalf("Failed to create local object store: %v", err)
		}
	} else {
		slog.Warn("no archive storage configured, manifest snapshots disabled")
		return nil
	}

	archiver := pipeline.NewArchiver(store, cfg.ArchiveBucket)
	if err := archiver.EnsureBucket(context.Background()); err != nil {
		slog.Warn("could not ensure archive bucket", "bucket", cfg.ArchiveBucket, "error", err)
	}
	return archiver
}

func CreateOrchestrator(db *gorm.DB, cfg PipelineConfig) *pipeline.Orchestrator {
	ghClient := ghpages.NewClient(cfg.GithubAPIURL, cfg.GithubOwner, cfg.GithubToken)

	return pipeline.NewOrchestrator(
		db,
		sitegen.NewGenerator(CreateLLMClient(cfg)),
		attachments.NewResolver(),
		ghpages.NewPublisher(ghClient),
		pipeline.NewNotifier(),
		CreateArchiver(cfg),
	)
}

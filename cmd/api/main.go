package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mlserve-backend/cmd"
	"mlserve-backend/internal/api"
	"mlserve-backend/internal/database"
	"mlserve-backend/internal/dataset"
	"mlserve-backend/internal/labelling"
	"mlserve-backend/internal/model"
	"mlserve-backend/internal/remote"
	"mlserve-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`

	WorkflowEngineURL string        `env:"WORKFLOW_ENGINE_URL,notEmpty,required"`
	WorkflowProject   string        `env:"WORKFLOW_PROJECT" envDefault:"mlserve"`
	WorkflowDomain    string        `env:"WORKFLOW_DOMAIN" envDefault:"development"`
	PollInterval      time.Duration `env:"EXECUTION_POLL_INTERVAL" envDefault:"2s"`

	ModelName string `env:"MODEL_NAME" envDefault:"model"`

	// S3 settings are optional; when no endpoint is configured, artifacts are
	// written to the local filesystem instead.
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	ArtifactBucket    string `env:"ARTIFACT_BUCKET_NAME" envDefault:"trained-models"`
	ArtifactDir       string `env:"ARTIFACT_DIR" envDefault:"./artifacts"`

	MaxSessions    int           `env:"MAX_LABEL_SESSIONS" envDefault:"1024"`
	SessionIdleTTL time.Duration `env:"LABEL_SESSION_IDLE_TTL" envDefault:"1h"`

	APIPort string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	artifacts := createArtifactStore(&cfg)
	if err := artifacts.CreateBucket(context.Background(), cfg.ArtifactBucket); err != nil {
		log.Fatalf("Failed to create artifact bucket: %v", err)
	}

	gateway := remote.NewClient(remote.ClientConfig{
		BaseURL:      cfg.WorkflowEngineURL,
		Project:      cfg.WorkflowProject,
		Domain:       cfg.WorkflowDomain,
		PollInterval: cfg.PollInterval,
	})

	provider := dataset.NewRecordProvider()
	trainer := model.NewSGDTrainer(provider)

	handle := model.NewHandle(model.Config{
		Name:            cfg.ModelName,
		Hyperparameters: trainer.Hyperparameters(),
		Trainer:         trainer,
		Predictor:       model.NewLinearPredictor(provider),
	})

	sessions := labelling.NewManager(
		labelling.NewMemoryStore(cfg.MaxSessions, cfg.SessionIdleTTL),
		provider,
		db,
	)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	service := api.NewModelService(db, handle, gateway, provider, sessions, artifacts, cfg.ArtifactBucket)
	service.AddRoutes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}

func createArtifactStore(cfg *APIConfig) storage.Provider {
	if cfg.S3EndpointURL == "" && cfg.S3AccessKeyID == "" {
		log.Printf("no S3 endpoint configured, storing artifacts under %s", cfg.ArtifactDir)
		return storage.NewLocalProvider(cfg.ArtifactDir)
	}

	provider, err := storage.NewS3Provider(&storage.S3ProviderConfig{
		S3EndpointURL:     cfg.S3EndpointURL,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3Region:          cfg.S3Region,
	})
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	return provider
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/farum-gateway/internal/adapters/http"
	"github.com/PabloGalante/farum-gateway/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/farum-gateway/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-gateway/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/farum-gateway/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-gateway/internal/app/completion"
	"github.com/PabloGalante/farum-gateway/internal/app/pipeline"
	"github.com/PabloGalante/farum-gateway/internal/config"
	"github.com/PabloGalante/farum-gateway/internal/domain"
	"github.com/PabloGalante/farum-gateway/internal/observability"
)

const (
	serviceName     = "farum-gateway"
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	llmClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	estimator, err := newEstimator(cfg)
	if err != nil {
		return err
	}

	p, err := pipeline.Build(cfg, store, llmClient, estimator)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(p.Router, p.Sessions, p.Identity, httpadapter.Info{Service: serviceName, Version: version}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("farum gateway listening", "port", cfg.Port, "mode", cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, cfg *config.Config) (pipeline.Storage, func(), error) {
	log := observability.Logger()

	var (
		store  pipeline.Storage
		closer io.Closer
	)
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init firestore store: %w", err)
		}
		store, closer = fs, fs
	case config.StorageSQLite:
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		db, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		store, closer = db, db
	default:
		log.Info("using in-memory storage")
		store = memstore.NewStore()
	}

	return store, func() {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			log.Warn("closing storage failed", "error", err)
		}
	}, nil
}

func newLLMClient(ctx context.Context, cfg *config.Config) (domain.LLMClient, error) {
	if cfg.MockLLM() {
		observability.Logger().Info("using mock LLM client")
		return llm.NewMockLLM(), nil
	}

	observability.Logger().Info("using genai LLM client", "model", cfg.ModelName, "gemini_api", cfg.GenAIAPIKey != "")
	client, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
		ProjectID: cfg.GCPProjectID,
		Location:  cfg.GCPLocation,
		APIKey:    cfg.GenAIAPIKey,
		Model:     cfg.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	return client, nil
}

func newEstimator(cfg *config.Config) (completion.TokenEstimator, error) {
	if cfg.Completion.TokenEstimator != config.EstimatorTiktoken {
		return completion.RatioEstimator{}, nil
	}
	est, err := completion.NewTiktokenEstimator("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("init tiktoken estimator: %w", err)
	}
	return est, nil
}

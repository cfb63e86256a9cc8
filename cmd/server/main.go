// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command server runs the Cognito ingestion and analytics API under a
// suture supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cognito-analytics/cognito/internal/api"
	"github.com/cognito-analytics/cognito/internal/config"
	"github.com/cognito-analytics/cognito/internal/database"
	"github.com/cognito-analytics/cognito/internal/logging"
	"github.com/cognito-analytics/cognito/internal/pipeline"
	"github.com/cognito-analytics/cognito/internal/simplify"
	"github.com/cognito-analytics/cognito/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("pipeline_enabled", cfg.Pipeline.Enabled).
		Bool("simplify_enabled", cfg.Simplify.APIKey != "").
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())

	// Async ingestion pipeline. When disabled the track handler writes to the
	// store synchronously and no pipeline services run.
	var publisher *pipeline.Publisher
	if cfg.Pipeline.Enabled {
		bus := pipeline.NewBus(cfg.Pipeline.BufferSize)
		defer bus.Close() //nolint:errcheck

		appender, err := pipeline.NewAppender(db, pipeline.AppenderConfig{
			BatchSize:     cfg.Pipeline.BatchSize,
			FlushInterval: cfg.Pipeline.FlushInterval,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create pipeline appender")
		}
		consumer, err := pipeline.NewConsumer(bus, cfg.Pipeline.Topic, appender)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create pipeline consumer")
		}
		svc, err := supervisor.NewConsumerService(consumer, appender)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create pipeline service")
		}
		tree.AddPipelineService(svc)

		publisher, err = pipeline.NewPublisher(bus, cfg.Pipeline.Topic)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create pipeline publisher")
		}
		logging.Info().
			Int("batch_size", cfg.Pipeline.BatchSize).
			Dur("flush_interval", cfg.Pipeline.FlushInterval).
			Msg("Ingestion pipeline enabled")
	}

	// Text simplification is optional; without an API key the service serves
	// fallback suggestions.
	var completion simplify.CompletionClient
	if client := simplify.NewGroqClient(&cfg.Simplify); client != nil {
		completion = client
		logging.Info().Str("model", cfg.Simplify.Model).Msg("Text simplification enabled")
	}
	svc := simplify.NewService(completion)

	handler := api.NewHandler(db, cfg, svc, publisher)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, &cfg.Security),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/apresai/paperq/internal/answer"
	"github.com/apresai/paperq/internal/config"
	"github.com/apresai/paperq/internal/ingest"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/pipeline"
	"github.com/apresai/paperq/internal/server"
	"github.com/apresai/paperq/internal/storage"
	"github.com/apresai/paperq/internal/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("PAPERQ_CONFIG"), "YAML config file")
	flag.Parse()

	logger := observability.InitLogger()
	logger.Info("paperq server starting...", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if l, err := observability.NewLogger(observability.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format}); err == nil {
		logger = l
		slog.SetDefault(logger)
	}

	tp, err := observability.InitTracer(ctx, "paperq-server", version, os.Getenv("ENVIRONMENT"))
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	awsCfg, awsErr := observability.LoadAWSConfig(ctx, cfg.AWS.Region)
	if awsErr != nil {
		logger.Warn("AWS config unavailable, running without AWS services", "error", awsErr)
	} else {
		loaded := server.LoadSecrets(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.AWS.SecretPrefix, logger)
		if len(loaded) > 0 {
			// secrets landed in the environment; pick up WEBHOOK_SECRET and friends
			if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
				logger.Error("Invalid configuration after loading secrets", "error", err)
				os.Exit(1)
			}
		}
	}
	if cfg.Server.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET not set, webhook signatures are not checked")
	}

	backend, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.Table,
		func(context.Context) (store.DynamoAPI, error) {
			if awsErr != nil {
				return nil, awsErr
			}
			return dynamodb.NewFromConfig(awsCfg), nil
		})
	if err != nil {
		logger.Error("Failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	popts := pipeline.Options{
		Store:       backend.Questions,
		Concurrency: cfg.Answer.Concurrency,
		Ingest:      ingest.Options{MaxBytes: cfg.MaxPDFBytes()},
	}
	if cfg.Ingest.OCR {
		popts.Ingest.OCR = ingest.NewTesseractOCR()
	}
	if gen, err := answer.NewGenerator(ctx, cfg.Answer.Model); err != nil {
		logger.Info("Answer generation disabled", "model", cfg.Answer.Model, "reason", err)
	} else {
		popts.Generator = gen
	}

	var st *storage.Storage
	if cfg.AWS.Bucket != "" && awsErr == nil {
		st = storage.NewStorage(s3.NewFromConfig(awsCfg), cfg.AWS.Bucket)
	}

	tasks := server.NewTaskManager(ctx, server.TaskOptions{
		Jobs:     backend.Jobs,
		Pipeline: popts,
		Storage:  st,
		MaxTasks: cfg.Server.MaxTasks,
		MaxBytes: cfg.MaxPDFBytes(),
		Timeout:  cfg.ProcessingTimeout(),
		Logger:   logger,
	})

	srv := server.New(cfg, backend.Jobs, backend.Questions, tasks, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}


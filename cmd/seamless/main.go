package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/providers"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/env"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/logger"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
	grpcserver "github.com/thisisisheanesu/seamlessm4tserver/internal/server/grpc"
	httpserver "github.com/thisisisheanesu/seamlessm4tserver/internal/server/http"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/service"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var (
		flagHTTPPort   = flag.Int("http-port", config.DefaultHTTPPort(), "HTTP port to listen on")
		flagGRPCPort   = flag.Int("grpc-port", config.DefaultGRPCPort(), "GRPC port to listen on")
		flagConfigPath = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", path.Join(config.DefaultConfigPath(), "seamless.v1.schema.json"), "Path to schema file")
	)
	flag.Parse()

	environment := env.FromEnv()

	slog.SetDefault(
		logger.New(environment,
			logger.WithLogToFile(true),
			logger.WithLogFile("logs/seamless.log"),
		),
	)

	if err := run(*flagConfigPath, *flagSchemaPath, *flagHTTPPort, *flagGRPCPort); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, schemaPath string, httpPort, grpcPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := model.NewManager()
	health := grpcserver.New()

	watcher, err := config.NewWatcher(ctx, configPath, schemaPath, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			health.SetServing(false)
			return
		}

		if err := manager.LoadModelsFromConfig(ctx, cfg); err != nil {
			slog.Error("Failed to load models from config", "error", err)
			health.SetServing(false)
			return
		}
		health.SetServing(true)
	})
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	cfg := watcher.Snapshot()
	slog.Info("Config loaded successfully", "config", configPath, "schema", schemaPath)

	servers := backend.NewServerManager()
	defer servers.StopAll()

	backends, err := providers.NewRegistry(cfg.Backends, servers)
	if err != nil {
		slog.Warn("Some backends are unavailable", "error", err)
	}
	defer func() {
		if err := backends.Close(); err != nil {
			slog.Warn("Failed to close backends", "error", err)
		}
	}()

	if err := manager.LoadModelsFromConfig(ctx, cfg); err != nil {
		slog.Error("Failed to load models from config", "error", err)
	} else {
		health.SetServing(true)
	}

	pipeline := service.NewPipeline(
		service.NewSTT(backends, manager),
		service.NewTranslator(backends, manager),
		service.NewTTS(backends, manager),
		manager,
	)

	api := httpserver.New(httpserver.Options{
		Pipeline: pipeline,
		Models:   manager,
		Config:   watcher.Snapshot,
		Version:  version,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Run(ctx, fmt.Sprintf(":%d", httpPort))
	})
	g.Go(func() error {
		return health.Run(ctx, fmt.Sprintf(":%d", grpcPort))
	})

	return g.Wait()
}

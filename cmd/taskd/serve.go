package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/ledger"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/notify"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/queue"
	"github.com/fyrsmithlabs/taskd/internal/validation"
	"github.com/fyrsmithlabs/taskd/internal/worker"
	"github.com/fyrsmithlabs/taskd/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the taskd HTTP daemon",
	Long: `Start the task orchestration daemon: loads configuration, opens the
task ledger, connects to NATS when enabled, and serves the HTTP API
until SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logging.Sync(logger) //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, deps.orch, logger)

	logger.Info("taskd starting",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("nats_enabled", cfg.NATS.Enabled))

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	logger.Info("taskd stopped")
	return nil
}

// dependencies holds the wired daemon components.
type dependencies struct {
	publisher *notify.Publisher
	orch      *orchestrator.Orchestrator
	logger    *zap.Logger
}

func (d *dependencies) close() {
	if d.publisher != nil {
		d.publisher.Close()
	}
}

// initDependencies wires ledger -> queue -> registry -> orchestrator.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	var notifier queue.Notifier
	if cfg.NATS.Enabled {
		pub, err := notify.Connect(cfg.NATS.URL, cfg.Queue.Namespace, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		deps.publisher = pub
		notifier = pub
	}

	store, err := ledger.NewStore(cfg.Queue.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open task ledger: %w", err)
	}

	q, err := queue.New(store, notifier, logger)
	if err != nil {
		return nil, err
	}
	q.SetMaxRetries(cfg.Queue.MaxRetries)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(q, registry, orchestrator.Config{
		MaxConcurrentWorkers: cfg.Orchestrator.MaxConcurrentWorkers,
		DispatchRate:         cfg.Orchestrator.DispatchRate,
	}, logger)
	if err != nil {
		return nil, err
	}
	deps.orch = orch
	return deps, nil
}

// buildRegistry registers the built-in custom worker: payload content is
// passed through the validation pipeline so callers can use taskd as a
// content-validation service. Domain workers register via the library
// API.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*worker.Registry, error) {
	registry := worker.NewRegistry()

	pipeline, err := validation.NewPipeline(&validation.Config{
		MinConfidence: cfg.Validation.MinConfidence,
		RulesPath:     cfg.Validation.RulesPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build validation pipeline: %w", err)
	}

	err = registry.Register(worker.TypeCustom, func(workerID string) worker.Worker {
		w, _ := worker.NewPipelineWorker(workerID, worker.TypeCustom, worker.EchoGenerator, pipeline)
		return w
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}

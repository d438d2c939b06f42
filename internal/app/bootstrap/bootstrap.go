package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	ledgerentries "parthenon/contexts/finance-core/ledger-entries"
	ledgerpostgres "parthenon/contexts/finance-core/ledger-entries/adapters/postgres"
	cutovercontroller "parthenon/contexts/migration-core/cutover-controller"
	cutoverpostgres "parthenon/contexts/migration-core/cutover-controller/adapters/postgres"
	cutoverworkers "parthenon/contexts/migration-core/cutover-controller/application/workers"
	coports "parthenon/contexts/migration-core/cutover-controller/ports"
	dualwritecapture "parthenon/contexts/migration-core/dual-write-capture"
	dwpostgres "parthenon/contexts/migration-core/dual-write-capture/adapters/postgres"
	parityservice "parthenon/contexts/migration-core/parity-service"
	paritypostgres "parthenon/contexts/migration-core/parity-service/adapters/postgres"
	parityworkers "parthenon/contexts/migration-core/parity-service/application/workers"
	partitionmanager "parthenon/contexts/migration-core/partition-manager"
	pmpostgres "parthenon/contexts/migration-core/partition-manager/adapters/postgres"
	pmworkers "parthenon/contexts/migration-core/partition-manager/application/workers"
	pmports "parthenon/contexts/migration-core/partition-manager/ports"
	"parthenon/internal/platform/config"
	"parthenon/internal/platform/db"
	"parthenon/internal/platform/httpserver"
	"parthenon/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	entityTypeRevenue = "revenue"
	entityTypeExpense = "expense"
	entityTypeBalance = "balance"
)

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres       *db.Postgres
	provisioner    pmworkers.Provisioner
	backfillRunner parityworkers.BackfillRunner
	parityRunner   parityworkers.ParityRunner
	outboxRelay    cutoverworkers.OutboxRelay
	cfg            config.Config
	logger         *slog.Logger
}

// stageReader adapts the persisted stage table to the stage-reading ports of
// the partition manager, parity service and ledger. Reading through the
// repository instead of the cutover service keeps construction acyclic.
type stageReader struct {
	repo *cutoverpostgres.Repository
}

func (r stageReader) Current(ctx context.Context, entityType string) (coports.Stage, error) {
	record, found, err := r.repo.GetStage(ctx, entityType)
	if err != nil {
		return coports.StageOff, err
	}
	if !found {
		return coports.StageOff, nil
	}
	return record.Stage, nil
}

func (r stageReader) CurrentStage(ctx context.Context, entityType string) (string, error) {
	stage, err := r.Current(ctx, entityType)
	if err != nil {
		return "", err
	}
	return string(stage), nil
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	modules, err := buildModules(cfg, pg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(
		modules.partitions,
		modules.cutover,
		modules.parity,
		modules.ledger,
		logger,
		normalizeAddr(cfg.HTTPPort),
	)
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	modules, err := buildModules(cfg, pg, logger)
	if err != nil {
		return nil, err
	}

	bus := messaging.NewBus(logger)
	entityTypes := []string{entityTypeRevenue, entityTypeExpense, entityTypeBalance}

	return &WorkerApp{
		postgres:    pg,
		provisioner: modules.partitions.Provisioner,
		backfillRunner: parityservice.NewBackfillRunner(
			modules.parity.Service,
			modules.stages,
			entityTypes,
			logger,
		),
		parityRunner: parityservice.NewParityRunner(
			modules.parity.Service,
			modules.stages,
			entityTypes,
			logger,
		),
		outboxRelay: cutovercontroller.NewOutboxRelay(
			modules.cutoverRepo,
			bus,
			cutoverpostgres.SystemClock{},
			logger,
		),
		cfg:    cfg,
		logger: logger,
	}, nil
}

type builtModules struct {
	partitions  partitionmanager.Module
	cutover     cutovercontroller.Module
	parity      parityservice.Module
	ledger      ledgerentries.Module
	stages      stageReader
	cutoverRepo *cutoverpostgres.Repository
}

func buildModules(cfg config.Config, pg *db.Postgres, logger *slog.Logger) (builtModules, error) {
	cutoverRepo := cutoverpostgres.NewRepository(pg.DB, logger)
	stages := stageReader{repo: cutoverRepo}

	ledgerRepo := ledgerpostgres.NewRepository(pg.DB, logger)
	pmRepo := pmpostgres.NewRepository(pg.DB, logger)

	partitions := partitionmanager.NewModule(partitionmanager.Dependencies{
		Schemes: []pmports.SchemeConfig{
			{EntityType: entityTypeRevenue, Scheme: pmports.SchemeCalendarRange},
			{EntityType: entityTypeExpense, Scheme: pmports.SchemeCalendarRange},
			{EntityType: entityTypeBalance, Scheme: pmports.SchemeHashModulo, HashBuckets: cfg.HashPartitionCount},
		},
		Repository:      pmRepo,
		Stages:          stages,
		LegacyAge:       ledgerRepo,
		Clock:           pmpostgres.SystemClock{},
		RetireRetention: time.Duration(cfg.RetireRetentionDays) * 24 * time.Hour,
		LookaheadMonths: cfg.PartitionLookaheadMonths,
		Logger:          logger,
	})

	dwStore := dwpostgres.NewStore(pg.DB, partitions.Service, logger)
	capture := dualwritecapture.NewModule(dualwritecapture.Dependencies{
		Router:     partitions.Service,
		Partitions: partitions.Service,
		Store:      dwStore,
		Logger:     logger,
	})

	parityRepo := paritypostgres.NewRepository(pg.DB, logger)
	parity := parityservice.NewModule(parityservice.Dependencies{
		Legacy:          ledgerRepo,
		Partitioned:     dwStore,
		Mirror:          capture.Service,
		Checkpoints:     parityRepo,
		Runs:            parityRepo,
		Stages:          stages,
		Outbox:          cutoverRepo,
		Clock:           cutoverpostgres.SystemClock{},
		IDGenerator:     cutoverpostgres.UUIDGenerator{},
		BatchSize:       cfg.BackfillBatchSize,
		VerifyBatchSize: cfg.ParityBatchSize,
		Logger:          logger,
	})

	cutover := cutovercontroller.NewModule(cutovercontroller.Dependencies{
		Stages:      cutoverRepo,
		Schemes:     partitions.Service,
		Partitions:  partitions.Service,
		Backfill:    parity.Service,
		Parity:      parity.Service,
		Outbox:      cutoverRepo,
		Clock:       cutoverpostgres.SystemClock{},
		IDGenerator: cutoverpostgres.UUIDGenerator{},
		Logger:      logger,
	})

	ledger := ledgerentries.NewModule(ledgerentries.Dependencies{
		Repo:           ledgerRepo,
		Tx:             db.TxRunner{DB: pg.DB},
		Mirror:         capture.Service,
		Partitioned:    dwStore,
		Stages:         stages,
		Idempotency:    ledgerRepo,
		Clock:          ledgerpostgres.SystemClock{},
		IDGenerator:    ledgerpostgres.UUIDGenerator{},
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})

	return builtModules{
		partitions:  partitions,
		cutover:     cutover,
		parity:      parity,
		ledger:      ledger,
		stages:      stages,
		cutoverRepo: cutoverRepo,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.WorkerPollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.cfg.WorkerPollInterval.String(),
	)

	for {
		if w.cfg.EnableProvisioner {
			if err := w.provisioner.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.cfg.EnableBackfillRunner {
			if err := w.backfillRunner.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.cfg.EnableParityRunner {
			if err := w.parityRunner.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.cfg.EnableOutboxRelay {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}

package parityservice

import (
	"log/slog"

	httpadapter "parthenon/contexts/migration-core/parity-service/adapters/http"
	"parthenon/contexts/migration-core/parity-service/adapters/memory"
	"parthenon/contexts/migration-core/parity-service/application"
	"parthenon/contexts/migration-core/parity-service/application/workers"
	"parthenon/contexts/migration-core/parity-service/ports"
)

type Module struct {
	Service application.Service
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Legacy          ports.LegacySource
	Partitioned     ports.PartitionedSource
	Mirror          ports.Mirror
	Checkpoints     ports.CheckpointStore
	Runs            ports.RunStore
	Stages          ports.StageReader
	Outbox          ports.OutboxWriter
	Clock           ports.Clock
	IDGenerator     ports.IDGenerator
	BatchSize       int
	VerifyBatchSize int
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Legacy:          deps.Legacy,
		Partitioned:     deps.Partitioned,
		Mirror:          deps.Mirror,
		Checkpoints:     deps.Checkpoints,
		Runs:            deps.Runs,
		Stages:          deps.Stages,
		Outbox:          deps.Outbox,
		Clock:           deps.Clock,
		IDGen:           deps.IDGenerator,
		BatchSize:       deps.BatchSize,
		VerifyBatchSize: deps.VerifyBatchSize,
		Logger:          deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule wires the service against an in-memory bookkeeping store.
// The mirror and partitioned source still come from the caller so tests can
// run the real dual-write path underneath.
func NewInMemoryModule(mirror ports.Mirror, partitioned ports.PartitionedSource, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Legacy:      store,
		Partitioned: partitioned,
		Mirror:      mirror,
		Checkpoints: store,
		Runs:        store,
		Stages:      store,
		Outbox:      store,
		Clock:       store,
		IDGenerator: store,
		BatchSize:   100,
		Logger:      logger,
	})
	module.Store = store
	return module
}

// NewBackfillRunner builds the worker that drains legacy history for every
// entity type at or past dual-write.
func NewBackfillRunner(service application.Service, stages ports.StageReader, entityTypes []string, logger *slog.Logger) workers.BackfillRunner {
	return workers.BackfillRunner{
		Service:     service,
		Stages:      stages,
		EntityTypes: entityTypes,
		Logger:      logger,
	}
}

// NewParityRunner builds the worker that audits both layouts for every
// entity type at or past shadow-verify.
func NewParityRunner(service application.Service, stages ports.StageReader, entityTypes []string, logger *slog.Logger) workers.ParityRunner {
	return workers.ParityRunner{
		Service:     service,
		Stages:      stages,
		EntityTypes: entityTypes,
		Logger:      logger,
	}
}

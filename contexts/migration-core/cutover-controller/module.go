package cutovercontroller

import (
	"log/slog"

	httpadapter "parthenon/contexts/migration-core/cutover-controller/adapters/http"
	"parthenon/contexts/migration-core/cutover-controller/adapters/memory"
	"parthenon/contexts/migration-core/cutover-controller/application"
	"parthenon/contexts/migration-core/cutover-controller/application/workers"
	"parthenon/contexts/migration-core/cutover-controller/ports"
)

type Module struct {
	Service application.Service
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Stages      ports.StageRepository
	Schemes     ports.SchemeRegistry
	Partitions  ports.PartitionGate
	Backfill    ports.BackfillGate
	Parity      ports.ParityGate
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Stages:     deps.Stages,
		Schemes:    deps.Schemes,
		Partitions: deps.Partitions,
		Backfill:   deps.Backfill,
		Parity:     deps.Parity,
		Outbox:     deps.Outbox,
		Clock:      deps.Clock,
		IDGen:      deps.IDGenerator,
		Logger:     deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Stages:      store,
		Schemes:     store,
		Partitions:  store,
		Backfill:    store,
		Parity:      store,
		Outbox:      store,
		Clock:       store,
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	return module
}

// NewOutboxRelay builds the worker that drains pending migration events.
func NewOutboxRelay(outbox ports.OutboxRepository, publisher ports.EventPublisher, clock ports.Clock, logger *slog.Logger) workers.OutboxRelay {
	return workers.OutboxRelay{
		Outbox:    outbox,
		Publisher: publisher,
		Clock:     clock,
		BatchSize: 100,
		Logger:    logger,
	}
}

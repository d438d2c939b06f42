package ledgerentries

import (
	"log/slog"
	"time"

	httpadapter "parthenon/contexts/finance-core/ledger-entries/adapters/http"
	"parthenon/contexts/finance-core/ledger-entries/adapters/memory"
	"parthenon/contexts/finance-core/ledger-entries/application"
	"parthenon/contexts/finance-core/ledger-entries/ports"
)

type Module struct {
	Service application.Service
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Repo           ports.Repository
	Tx             ports.TxRunner
	Mirror         ports.Mirror
	Partitioned    ports.PartitionedReader
	Stages         ports.StageReader
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Repo:           deps.Repo,
		Tx:             deps.Tx,
		Mirror:         deps.Mirror,
		Partitioned:    deps.Partitioned,
		Stages:         deps.Stages,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGen:          deps.IDGenerator,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule wires the service over the in-memory ledger. The mirror
// and partitioned reader come from the caller; any extra restorables join the
// transaction scope so a capture failure also rolls back the partitioned
// store in tests.
func NewInMemoryModule(
	mirror ports.Mirror,
	partitioned ports.PartitionedReader,
	stages ports.StageReader,
	logger *slog.Logger,
	restorables ...memory.Restorable,
) Module {
	store := memory.NewStore()
	if stages == nil {
		stages = store
	}
	module := NewModule(Dependencies{
		Repo:        store,
		Tx:          memory.TxRunner{Stores: append([]memory.Restorable{store}, restorables...)},
		Mirror:      mirror,
		Partitioned: partitioned,
		Stages:      stages,
		Idempotency: store,
		Clock:       store,
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	return module
}

package dualwritecapture

import (
	"log/slog"

	"parthenon/contexts/migration-core/dual-write-capture/adapters/memory"
	"parthenon/contexts/migration-core/dual-write-capture/application"
	"parthenon/contexts/migration-core/dual-write-capture/ports"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Router     ports.Router
	Partitions ports.ProvisionChecker
	Store      ports.Store
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Router:     deps.Router,
			Partitions: deps.Partitions,
			Store:      deps.Store,
			Logger:     deps.Logger,
		},
	}
}

// NewInMemoryModule wires the capture service over the in-memory partitioned
// store. Router and checker come from a partition-manager module so routing
// and the provisioned set stay consistent with lifecycle state.
func NewInMemoryModule(router ports.Router, partitions ports.ProvisionChecker, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Router:     router,
		Partitions: partitions,
		Store:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}

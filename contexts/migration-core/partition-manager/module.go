package partitionmanager

import (
	"log/slog"
	"time"

	httpadapter "parthenon/contexts/migration-core/partition-manager/adapters/http"
	"parthenon/contexts/migration-core/partition-manager/adapters/memory"
	"parthenon/contexts/migration-core/partition-manager/application"
	"parthenon/contexts/migration-core/partition-manager/application/workers"
	"parthenon/contexts/migration-core/partition-manager/ports"
)

type Module struct {
	Service     *application.Service
	Handler     httpadapter.Handler
	Provisioner workers.Provisioner
	Store       *memory.Store
}

type Dependencies struct {
	Schemes         []ports.SchemeConfig
	Repository      ports.Repository
	Stages          ports.StageReader
	LegacyAge       ports.LegacyAgeSource
	Clock           ports.Clock
	RetireRetention time.Duration
	LookaheadMonths int
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.New(
		deps.Schemes,
		deps.Repository,
		deps.Stages,
		deps.LegacyAge,
		deps.Clock,
		deps.RetireRetention,
		deps.Logger,
	)
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
		Provisioner: workers.Provisioner{
			Lifecycle:       service,
			Clock:           deps.Clock,
			LookaheadMonths: deps.LookaheadMonths,
			Logger:          deps.Logger,
		},
	}
}

func NewInMemoryModule(schemes []ports.SchemeConfig, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Schemes:         schemes,
		Repository:      store,
		Stages:          store,
		LegacyAge:       store,
		Clock:           store,
		RetireRetention: 90 * 24 * time.Hour,
		LookaheadMonths: 2,
		Logger:          logger,
	})
	module.Store = store
	return module
}

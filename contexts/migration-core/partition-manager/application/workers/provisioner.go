package workers

import (
	"context"
	"log/slog"
	"time"
)

// Lifecycle is the slice of the partition manager the provisioner needs.
type Lifecycle interface {
	RangeEntityTypes() []string
	ProvisionMonths(ctx context.Context, entityType string, from time.Time, lookahead int) error
}

type Clock interface {
	Now() time.Time
}

// Provisioner keeps range-partitioned entity types provisioned through the
// look-ahead window so live capture never hits an unprovisioned month under
// normal operation.
type Provisioner struct {
	Lifecycle       Lifecycle
	Clock           Clock
	LookaheadMonths int
	Logger          *slog.Logger
}

func (p Provisioner) RunOnce(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookahead := p.LookaheadMonths
	if lookahead <= 0 {
		lookahead = 2
	}

	now := time.Now().UTC()
	if p.Clock != nil {
		now = p.Clock.Now().UTC()
	}

	for _, entityType := range p.Lifecycle.RangeEntityTypes() {
		if err := p.Lifecycle.ProvisionMonths(ctx, entityType, now, lookahead); err != nil {
			logger.Error("look-ahead provisioning failed",
				"event", "partition_provisioner_failed",
				"module", "migration-core/partition-manager",
				"layer", "worker",
				"entity_type", entityType,
				"error", err.Error(),
			)
			return err
		}
	}
	return nil
}

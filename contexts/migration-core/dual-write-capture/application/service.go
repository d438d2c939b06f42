package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	domainerrors "parthenon/contexts/migration-core/dual-write-capture/domain/errors"
	"parthenon/contexts/migration-core/dual-write-capture/ports"
)

// Service mirrors every legacy ledger write into the partitioned store.
// Capture runs inside the caller's transaction: a failed mirror aborts the
// originating legacy write, so the two layouts can never diverge silently.
type Service struct {
	Router     ports.Router
	Partitions ports.ProvisionChecker
	Store      ports.Store
	Logger     *slog.Logger
}

// Capture routes after by its key fields and upserts it into the target
// partition. before is the pre-image of an update (nil on insert); deletes
// never reach this path, they are soft status changes flowing through the
// update path. Replaying the same after is a no-op beyond the first apply.
func (s Service) Capture(ctx context.Context, entityType string, before *ports.LedgerRow, after ports.LedgerRow) error {
	if strings.TrimSpace(after.NaturalKey) == "" || strings.TrimSpace(entityType) == "" {
		return domainerrors.ErrInvalidRow
	}

	route, err := s.Router.Route(entityType, after.ShardKey, after.TemporalKey)
	if err != nil {
		return err
	}

	provisioned, err := s.Partitions.IsProvisioned(ctx, entityType, route.PartitionID)
	if err != nil {
		return err
	}
	if !provisioned {
		// The caller must abort the whole transaction, legacy write included.
		return fmt.Errorf("partition %s: %w", route.PartitionID, domainerrors.ErrPartitionNotProvisioned)
	}

	if err := s.Store.Put(ctx, route.PartitionID, after); err != nil {
		return err
	}

	operation := "insert"
	if before != nil {
		operation = "update"
	}
	resolveLogger(s.Logger).Debug("ledger write captured",
		"event", "dual_write_captured",
		"module", "migration-core/dual-write-capture",
		"layer", "application",
		"entity_type", entityType,
		"natural_key", after.NaturalKey,
		"partition_id", route.PartitionID,
		"operation", operation,
	)
	return nil
}

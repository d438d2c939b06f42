package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"parthenon/contexts/migration-core/partition-manager/application"
	domainerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	"parthenon/contexts/migration-core/partition-manager/ports"
	httptransport "parthenon/contexts/migration-core/partition-manager/transport/http"
)

type Handler struct {
	Service *application.Service
	Logger  *slog.Logger
}

func (h Handler) ProvisionHandler(
	ctx context.Context,
	entityType string,
	req httptransport.ProvisionPartitionRequest,
) (httptransport.PartitionResponse, error) {
	bucket, err := bucketFromRequest(req.Modulus, req.Remainder, req.Month)
	if err != nil {
		return httptransport.PartitionResponse{}, err
	}
	partition, err := h.Service.Provision(ctx, entityType, bucket)
	if err != nil {
		return httptransport.PartitionResponse{}, err
	}
	return httptransport.PartitionResponse{
		Status: "success",
		Data:   toDTO(partition),
	}, nil
}

func (h Handler) RetireHandler(
	ctx context.Context,
	entityType string,
	req httptransport.RetirePartitionRequest,
) (httptransport.PartitionResponse, error) {
	bucket, err := bucketFromRequest(req.Modulus, req.Remainder, req.Month)
	if err != nil {
		return httptransport.PartitionResponse{}, err
	}
	partition, err := h.Service.Retire(ctx, entityType, bucket)
	if err != nil {
		return httptransport.PartitionResponse{}, err
	}
	return httptransport.PartitionResponse{
		Status: "success",
		Data:   toDTO(partition),
	}, nil
}

func (h Handler) ListActiveHandler(
	ctx context.Context,
	entityType string,
) (httptransport.PartitionsResponse, error) {
	partitions, err := h.Service.ListActive(ctx, entityType)
	if err != nil {
		return httptransport.PartitionsResponse{}, err
	}
	resp := httptransport.PartitionsResponse{
		Status: "success",
		Data:   make([]httptransport.PartitionDTO, 0, len(partitions)),
	}
	for _, partition := range partitions {
		resp.Data = append(resp.Data, toDTO(partition))
	}
	return resp, nil
}

func bucketFromRequest(modulus int, remainder int, month string) (ports.BucketSpec, error) {
	month = strings.TrimSpace(month)
	if month != "" {
		if modulus != 0 {
			return ports.BucketSpec{}, domainerrors.ErrInvalidBucket
		}
		start, err := time.ParseInLocation("2006-01", month, time.UTC)
		if err != nil {
			return ports.BucketSpec{}, domainerrors.ErrInvalidBucket
		}
		return ports.BucketSpec{Start: start, Next: start.AddDate(0, 1, 0)}, nil
	}
	return ports.BucketSpec{Modulus: modulus, Remainder: remainder}, nil
}

func toDTO(partition ports.Partition) httptransport.PartitionDTO {
	dto := httptransport.PartitionDTO{
		PartitionID: partition.PartitionID,
		EntityType:  partition.EntityType,
		Scheme:      string(partition.Scheme),
		Status:      partition.Status,
		Modulus:     partition.Bucket.Modulus,
		Remainder:   partition.Bucket.Remainder,
		CreatedAt:   partition.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !partition.Bucket.Start.IsZero() {
		dto.RangeStart = partition.Bucket.Start.UTC().Format("2006-01-02")
		dto.RangeNext = partition.Bucket.Next.UTC().Format("2006-01-02")
	}
	return dto
}

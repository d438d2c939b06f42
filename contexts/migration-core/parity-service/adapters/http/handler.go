package httpadapter

import (
	"context"
	"log/slog"

	"parthenon/contexts/migration-core/parity-service/application"
	httptransport "parthenon/contexts/migration-core/parity-service/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) BackfillHandler(
	ctx context.Context,
	entityType string,
	req httptransport.BackfillRequest,
) (httptransport.BackfillResponse, error) {
	service := h.Service
	if req.BatchSize > 0 {
		service.BatchSize = req.BatchSize
	}
	result, err := service.Backfill(ctx, entityType, req.Cursor)
	if err != nil {
		return httptransport.BackfillResponse{}, err
	}
	return httptransport.BackfillResponse{
		Status: "success",
		Data: httptransport.BackfillDTO{
			EntityType: entityType,
			RowsCopied: result.RowsCopied,
			NextCursor: result.NextCursor,
			Done:       result.Done,
		},
	}, nil
}

func (h Handler) VerifyHandler(ctx context.Context, entityType string) (httptransport.ParityReportResponse, error) {
	records, err := h.Service.Verify(ctx, entityType)
	if err != nil {
		return httptransport.ParityReportResponse{}, err
	}
	items := make([]httptransport.ParityRecordDTO, 0, len(records))
	for _, record := range records {
		items = append(items, httptransport.ParityRecordDTO{
			NaturalKey: record.NaturalKey,
			Class:      string(record.Class),
			Fields:     record.Fields,
		})
	}
	return httptransport.ParityReportResponse{
		Status: "success",
		Data: httptransport.ParityReportDTO{
			EntityType: entityType,
			Clean:      len(items) == 0,
			Mismatched: items,
		},
	}, nil
}

func (h Handler) RepairHandler(
	ctx context.Context,
	entityType string,
	req httptransport.RepairRequest,
) (httptransport.RepairResponse, error) {
	copied, err := h.Service.Repair(ctx, entityType, req.NaturalKeys)
	if err != nil {
		return httptransport.RepairResponse{}, err
	}
	return httptransport.RepairResponse{
		Status: "success",
		Data: httptransport.RepairDTO{
			EntityType: entityType,
			RowsCopied: copied,
		},
	}, nil
}

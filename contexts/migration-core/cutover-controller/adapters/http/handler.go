package httpadapter

import (
	"context"
	"log/slog"

	"parthenon/contexts/migration-core/cutover-controller/application"
	httptransport "parthenon/contexts/migration-core/cutover-controller/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CurrentStageHandler(ctx context.Context, entityType string) (httptransport.StageResponse, error) {
	stage, err := h.Service.Current(ctx, entityType)
	if err != nil {
		return httptransport.StageResponse{}, err
	}
	return httptransport.StageResponse{
		Status: "success",
		Data: httptransport.StageDTO{
			EntityType: entityType,
			Stage:      string(stage),
		},
	}, nil
}

func (h Handler) AdvanceStageHandler(
	ctx context.Context,
	entityType string,
	req httptransport.AdvanceStageRequest,
) (httptransport.StageResponse, error) {
	stage, err := h.Service.Advance(ctx, entityType, req.Confirm)
	if err != nil {
		return httptransport.StageResponse{}, err
	}
	return httptransport.StageResponse{
		Status: "success",
		Data: httptransport.StageDTO{
			EntityType: entityType,
			Stage:      string(stage),
		},
	}, nil
}

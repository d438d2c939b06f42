package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"parthenon/contexts/finance-core/ledger-entries/application"
	domainerrors "parthenon/contexts/finance-core/ledger-entries/domain/errors"
	"parthenon/contexts/finance-core/ledger-entries/ports"
	httptransport "parthenon/contexts/finance-core/ledger-entries/transport/http"
)

const dateLayout = "2006-01-02"

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CreateEntryHandler(
	ctx context.Context,
	idempotencyKey string,
	req httptransport.CreateEntryRequest,
) (httptransport.EntryResponse, bool, error) {
	entryDate, err := time.Parse(dateLayout, req.EntryDate)
	if err != nil {
		return httptransport.EntryResponse{}, false, domainerrors.ErrInvalidInput
	}
	entry, replayed, err := h.Service.CreateEntry(ctx, idempotencyKey, ports.CreateEntryInput{
		EntityType:  req.EntityType,
		OrgID:       req.OrgID,
		EntryDate:   entryDate,
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		return httptransport.EntryResponse{}, false, err
	}
	return entryResponse(entry), replayed, nil
}

func (h Handler) GetEntryHandler(ctx context.Context, entryID string) (httptransport.EntryResponse, error) {
	entry, err := h.Service.GetEntry(ctx, entryID)
	if err != nil {
		return httptransport.EntryResponse{}, err
	}
	return entryResponse(entry), nil
}

func (h Handler) ListEntriesHandler(
	ctx context.Context,
	entityType string,
	orgID string,
	limit int,
	offset int,
) (httptransport.EntriesResponse, error) {
	entries, err := h.Service.ListEntries(ctx, entityType, orgID, limit, offset)
	if err != nil {
		return httptransport.EntriesResponse{}, err
	}
	items := make([]httptransport.EntryDTO, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryDTO(entry))
	}
	return httptransport.EntriesResponse{Status: "success", Data: items}, nil
}

func (h Handler) UpdateEntryHandler(
	ctx context.Context,
	entryID string,
	req httptransport.UpdateEntryRequest,
) (httptransport.EntryResponse, error) {
	entry, err := h.Service.UpdateEntry(ctx, entryID, ports.UpdateEntryInput{
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		return httptransport.EntryResponse{}, err
	}
	return entryResponse(entry), nil
}

func (h Handler) ApproveEntryHandler(
	ctx context.Context,
	entryID string,
	req httptransport.ApproveEntryRequest,
) (httptransport.EntryResponse, error) {
	entry, err := h.Service.ApproveEntry(ctx, entryID, req.ApprovedBy)
	if err != nil {
		return httptransport.EntryResponse{}, err
	}
	return entryResponse(entry), nil
}

func (h Handler) VoidEntryHandler(ctx context.Context, entryID string) (httptransport.EntryResponse, error) {
	entry, err := h.Service.VoidEntry(ctx, entryID)
	if err != nil {
		return httptransport.EntryResponse{}, err
	}
	return entryResponse(entry), nil
}

func (h Handler) UpsertBalanceHandler(
	ctx context.Context,
	orgID string,
	balanceDate string,
	req httptransport.UpsertBalanceRequest,
) (httptransport.BalanceResponse, error) {
	parsed, err := time.Parse(dateLayout, balanceDate)
	if err != nil {
		return httptransport.BalanceResponse{}, domainerrors.ErrInvalidInput
	}
	balance, err := h.Service.UpsertDailyBalance(ctx, orgID, parsed, req.AmountCents)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	return balanceResponse(balance), nil
}

func (h Handler) GetBalanceHandler(ctx context.Context, orgID string, balanceDate string) (httptransport.BalanceResponse, error) {
	parsed, err := time.Parse(dateLayout, balanceDate)
	if err != nil {
		return httptransport.BalanceResponse{}, domainerrors.ErrInvalidInput
	}
	balance, err := h.Service.GetBalance(ctx, orgID, parsed)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	return balanceResponse(balance), nil
}

func entryResponse(entry ports.LedgerEntry) httptransport.EntryResponse {
	return httptransport.EntryResponse{Status: "success", Data: entryDTO(entry)}
}

func entryDTO(entry ports.LedgerEntry) httptransport.EntryDTO {
	return httptransport.EntryDTO{
		EntryID:     entry.EntryID,
		EntityType:  entry.EntityType,
		OrgID:       entry.OrgID,
		EntryDate:   entry.EntryDate.UTC().Format(dateLayout),
		AmountCents: entry.AmountCents,
		Category:    entry.Category,
		Status:      entry.Status,
		Description: entry.Description,
		ApprovedBy:  entry.ApprovedBy,
		CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   entry.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func balanceResponse(balance ports.DailyBalance) httptransport.BalanceResponse {
	return httptransport.BalanceResponse{
		Status: "success",
		Data: httptransport.BalanceDTO{
			OrgID:       balance.OrgID,
			BalanceDate: balance.BalanceDate.UTC().Format(dateLayout),
			AmountCents: balance.AmountCents,
			UpdatedAt:   balance.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
}

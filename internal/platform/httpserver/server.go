package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	ledgerentries "parthenon/contexts/finance-core/ledger-entries"
	ledgererrors "parthenon/contexts/finance-core/ledger-entries/domain/errors"
	ledgerhttp "parthenon/contexts/finance-core/ledger-entries/transport/http"
	cutovercontroller "parthenon/contexts/migration-core/cutover-controller"
	cutovererrors "parthenon/contexts/migration-core/cutover-controller/domain/errors"
	cutoverhttp "parthenon/contexts/migration-core/cutover-controller/transport/http"
	dwerrors "parthenon/contexts/migration-core/dual-write-capture/domain/errors"
	parityservice "parthenon/contexts/migration-core/parity-service"
	parityerrors "parthenon/contexts/migration-core/parity-service/domain/errors"
	parityhttp "parthenon/contexts/migration-core/parity-service/transport/http"
	partitionmanager "parthenon/contexts/migration-core/partition-manager"
	pmerrors "parthenon/contexts/migration-core/partition-manager/domain/errors"
	pmhttp "parthenon/contexts/migration-core/partition-manager/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "parthenon/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	partitions partitionmanager.Module
	cutover    cutovercontroller.Module
	parity     parityservice.Module
	ledger     ledgerentries.Module
}

func New(
	partitions partitionmanager.Module,
	cutover cutovercontroller.Module,
	parity parityservice.Module,
	ledger ledgerentries.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		partitions: partitions,
		cutover:    cutover,
		parity:     parity,
		ledger:     ledger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /api/migration/v1/stages/{entity_type}", s.handleCurrentStage)
	s.mux.HandleFunc("POST /api/migration/v1/stages/{entity_type}/advance", s.handleAdvanceStage)
	s.mux.HandleFunc("GET /api/migration/v1/partitions/{entity_type}", s.handleListPartitions)
	s.mux.HandleFunc("POST /api/migration/v1/partitions/{entity_type}/provision", s.handleProvisionPartition)
	s.mux.HandleFunc("POST /api/migration/v1/partitions/{entity_type}/retire", s.handleRetirePartition)
	s.mux.HandleFunc("POST /api/migration/v1/backfill/{entity_type}", s.handleBackfill)
	s.mux.HandleFunc("GET /api/migration/v1/parity/{entity_type}", s.handleVerifyParity)
	s.mux.HandleFunc("POST /api/migration/v1/parity/{entity_type}/repair", s.handleRepairParity)

	s.mux.HandleFunc("POST /api/ledger/v1/entries", s.handleCreateEntry)
	s.mux.HandleFunc("GET /api/ledger/v1/entries", s.handleListEntries)
	s.mux.HandleFunc("GET /api/ledger/v1/entries/{entry_id}", s.handleGetEntry)
	s.mux.HandleFunc("PUT /api/ledger/v1/entries/{entry_id}", s.handleUpdateEntry)
	s.mux.HandleFunc("POST /api/ledger/v1/entries/{entry_id}/approve", s.handleApproveEntry)
	s.mux.HandleFunc("POST /api/ledger/v1/entries/{entry_id}/void", s.handleVoidEntry)
	s.mux.HandleFunc("PUT /api/ledger/v1/balances/{org_id}/{balance_date}", s.handleUpsertBalance)
	s.mux.HandleFunc("GET /api/ledger/v1/balances/{org_id}/{balance_date}", s.handleGetBalance)
}

func (s *Server) handleCurrentStage(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cutover.Handler.CurrentStageHandler(r.Context(), r.PathValue("entity_type"))
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	var req cutoverhttp.AdvanceStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMigrationError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.cutover.Handler.AdvanceStageHandler(r.Context(), r.PathValue("entity_type"), req)
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.partitions.Handler.ListActiveHandler(r.Context(), r.PathValue("entity_type"))
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProvisionPartition(w http.ResponseWriter, r *http.Request) {
	var req pmhttp.ProvisionPartitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMigrationError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.partitions.Handler.ProvisionHandler(r.Context(), r.PathValue("entity_type"), req)
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetirePartition(w http.ResponseWriter, r *http.Request) {
	var req pmhttp.RetirePartitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMigrationError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.partitions.Handler.RetireHandler(r.Context(), r.PathValue("entity_type"), req)
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req parityhttp.BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMigrationError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.parity.Handler.BackfillHandler(r.Context(), r.PathValue("entity_type"), req)
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyParity(w http.ResponseWriter, r *http.Request) {
	resp, err := s.parity.Handler.VerifyHandler(r.Context(), r.PathValue("entity_type"))
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRepairParity(w http.ResponseWriter, r *http.Request) {
	var req parityhttp.RepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMigrationError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.parity.Handler.RepairHandler(r.Context(), r.PathValue("entity_type"), req)
	if err != nil {
		writeMigrationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, replayed, err := s.ledger.Handler.CreateEntryHandler(
		r.Context(),
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	offset := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}
		offset = parsed
	}

	resp, err := s.ledger.Handler.ListEntriesHandler(
		r.Context(),
		query.Get("entity_type"),
		query.Get("org_id"),
		limit,
		offset,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.GetEntryHandler(r.Context(), r.PathValue("entry_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.UpdateEntryHandler(r.Context(), r.PathValue("entry_id"), req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApproveEntry(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.ApproveEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.ApproveEntryHandler(r.Context(), r.PathValue("entry_id"), req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVoidEntry(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.VoidEntryHandler(r.Context(), r.PathValue("entry_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsertBalance(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.UpsertBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.UpsertBalanceHandler(
		r.Context(),
		r.PathValue("org_id"),
		r.PathValue("balance_date"),
		req,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.GetBalanceHandler(
		r.Context(),
		r.PathValue("org_id"),
		r.PathValue("balance_date"),
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeMigrationDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pmerrors.ErrUnsupportedEntityType),
		errors.Is(err, cutovererrors.ErrUnknownEntityType),
		errors.Is(err, parityerrors.ErrUnknownEntityType):
		writeMigrationError(w, http.StatusUnprocessableEntity, "unsupported_entity_type", err.Error())
	case errors.Is(err, pmerrors.ErrInvalidBucket),
		errors.Is(err, parityerrors.ErrNoKeysRequested):
		writeMigrationError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, pmerrors.ErrPartitionNotFound):
		writeMigrationError(w, http.StatusNotFound, "partition_not_found", err.Error())
	case errors.Is(err, pmerrors.ErrPartitionOverlap):
		writeMigrationError(w, http.StatusConflict, "partition_overlap", err.Error())
	case errors.Is(err, pmerrors.ErrRetireNotAllowed):
		writeMigrationError(w, http.StatusConflict, "retire_not_allowed", err.Error())
	case errors.Is(err, cutovererrors.ErrIllegalTransition):
		writeMigrationError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, dwerrors.ErrPartitionNotProvisioned):
		writeMigrationError(w, http.StatusConflict, "partition_not_provisioned", err.Error())
	default:
		writeMigrationError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrInvalidInput),
		errors.Is(err, ledgererrors.ErrIdempotencyKeyMissing):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ledgererrors.ErrEntryNotFound):
		writeLedgerError(w, http.StatusNotFound, "entry_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrEntryVoided),
		errors.Is(err, ledgererrors.ErrIdempotencyConflict):
		writeLedgerError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ledgererrors.ErrLegacyWritesRetired):
		writeLedgerError(w, http.StatusGone, "legacy_writes_retired", err.Error())
	case errors.Is(err, dwerrors.ErrPartitionNotProvisioned):
		writeLedgerError(w, http.StatusConflict, "partition_not_provisioned", err.Error())
	case errors.Is(err, pmerrors.ErrUnsupportedEntityType):
		writeLedgerError(w, http.StatusUnprocessableEntity, "unsupported_entity_type", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeMigrationError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, pmhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

/*
handlers.go - HTTP API handlers for the pricing recommendation engine

PURPOSE:
  Exposes the pricing pipeline via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine packages.

ENDPOINTS:
  Ingestion:
    POST   /api/ingest                     Import a stay batch, rebuild facts
    GET    /api/facts                      Read daily facts for a range
    GET    /api/training                   Training dataset for the forecaster

  Forecast:
    POST   /api/forecast                   Push a forecast run's output
    GET    /api/forecast                   Read the normalized grid
    POST   /api/forecast/adjust            Manually adjust one point

  Recommendations:
    POST   /api/recommendations/generate   Run the rule engine over a range
    GET    /api/recommendations            List recommendations (filterable)
    POST   /api/recommendations/approve    Approve one or many pending rows
    POST   /api/recommendations/{id}/reject Reject one pending row

  Export:
    GET    /api/export/approved            Approved rates for the exporter
    POST   /api/export/confirm             Mark a range's approved rows exported

  Configuration:
    POST   /api/config/reload              Reload rules/reference data from disk

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (expander, aggregator, bridge, generator, lifecycle)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Lifecycle conflict (approve twice, regenerate over approved)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brisamar/pricing-engine/config"
	"github.com/brisamar/pricing-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      engine.TxStore
	ConfigPath string
	Log        *zap.Logger

	// mu guards the configuration-derived collaborators, which are swapped
	// wholesale on reload.
	mu         sync.RWMutex
	registry   *engine.Registry
	rules      []engine.PricingRule
	clamp      engine.ClampConfig
	expander   *engine.Expander
	aggregator *engine.Aggregator
	bridge     *engine.Bridge
	generator  *engine.Generator
	lifecycle  *engine.Lifecycle
}

// NewHandler creates a handler wired to the store and configuration.
func NewHandler(store engine.TxStore, cfg *config.Config, configPath string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		Store:      store,
		ConfigPath: configPath,
		Log:        log,
	}
	h.applyConfig(cfg)
	return h
}

// applyConfig rebuilds every configuration-derived collaborator.
func (h *Handler) applyConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry = cfg.Registry
	h.rules = cfg.Rules
	h.clamp = cfg.Clamp
	h.expander = engine.NewExpander(h.Log)
	h.aggregator = engine.NewAggregator(cfg.Registry, h.Log)
	h.bridge = engine.NewBridge(cfg.Registry, h.Log)
	ruleEngine := engine.NewRuleEngine(cfg.Registry, h.Log)
	h.generator = engine.NewGenerator(cfg.Registry, ruleEngine, h.Store, cfg.Clamp, h.Log)
	h.lifecycle = engine.NewLifecycle(h.Store, h.Log)
}

// =============================================================================
// INGESTION HANDLERS
// =============================================================================

// Ingest imports a stay batch: expands stays into nights, aggregates them
// into daily facts, and replaces the facts for the covered range.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := parsePeriod(w, req.From, req.To)
	if !ok {
		return
	}

	h.mu.RLock()
	expander, aggregator := h.expander, h.aggregator
	h.mu.RUnlock()

	stays, summary := parseStays(req.Stays)

	nights, expandSummary := expander.ExpandBatch(stays)
	facts, aggSummary := aggregator.Aggregate(nights, period)

	// Succeeded counts stays; expansion is the stage that accepts or
	// rejects whole stays. Aggregation contributes per-night rejections
	// and data-quality warnings on top.
	summary.Succeeded = expandSummary.Succeeded
	summary.Rejected += expandSummary.Rejected + aggSummary.Rejected
	summary.Errors = append(summary.Errors, expandSummary.Errors...)
	summary.Errors = append(summary.Errors, aggSummary.Errors...)
	summary.Warnings = append(summary.Warnings, aggSummary.Warnings...)

	if err := h.Store.ReplaceFacts(r.Context(), period, facts); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist facts", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchSummaryDTO(summary))
}

// parseStays type-validates the wire records. Unparseable rows are rejected
// into the summary rather than aborting the batch.
func parseStays(dtos []StayRecordDTO) ([]engine.RawStayRecord, engine.BatchSummary) {
	var summary engine.BatchSummary
	stays := make([]engine.RawStayRecord, 0, len(dtos))
	for _, d := range dtos {
		checkIn, err := engine.ParseDate(d.CheckIn)
		if err != nil {
			summary.Reject(&engine.ValidationError{StayRef: d.RegistryID, Field: "check_in", Reason: err.Error()})
			continue
		}
		checkOut, err := engine.ParseDate(d.CheckOut)
		if err != nil {
			summary.Reject(&engine.ValidationError{StayRef: d.RegistryID, Field: "check_out", Reason: err.Error()})
			continue
		}
		gross, err := decimal.NewFromString(d.GrossValue)
		if err != nil {
			summary.Reject(&engine.ValidationError{StayRef: d.RegistryID, Field: "gross_value", Reason: err.Error()})
			continue
		}
		status := engine.StayStatus(d.Status)
		if status == "" {
			status = engine.StayConfirmed
		}
		stays = append(stays, engine.RawStayRecord{
			RegistryID:   d.RegistryID,
			CheckIn:      checkIn,
			CheckOut:     checkOut,
			RoomTypeCode: d.RoomType,
			ChannelName:  d.Channel,
			GrossValue:   gross,
			Status:       status,
		})
	}
	return stays, summary
}

// GetFacts returns the daily facts for a range, optionally one room type.
func (h *Handler) GetFacts(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}
	roomType := roomTypeFilter(r)

	facts, err := h.Store.FactsInRange(r.Context(), period, roomType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read facts", err)
		return
	}
	dtos := make([]DailyFactDTO, len(facts))
	for i, f := range facts {
		dtos[i] = toDailyFactDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTrainingSet returns the occupancy/ADR series the external forecaster
// trains on.
func (h *Handler) GetTrainingSet(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	facts, err := h.Store.FactsInRange(r.Context(), period, roomTypeFilter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read facts", err)
		return
	}
	rows := engine.BuildTrainingSet(facts)
	dtos := make([]TrainingRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = TrainingRowDTO{
			Date:       row.Date.String(),
			RoomTypeID: string(row.RoomTypeID),
			Occupancy:  row.Occupancy.String(),
			ADR:        row.ADR.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FORECAST HANDLERS
// =============================================================================

// PushForecast normalizes a forecast run's raw output onto the complete
// grid and persists it, honoring manual adjustments unless forced.
func (h *Handler) PushForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	horizon, ok := parsePeriod(w, req.From, req.To)
	if !ok {
		return
	}

	raw := make([]engine.RawForecast, 0, len(req.Points))
	var summary engine.BatchSummary
	for _, p := range req.Points {
		date, err := engine.ParseDate(p.Date)
		if err != nil {
			summary.Reject(&engine.ValidationError{Field: "date", Reason: err.Error()})
			continue
		}
		occ, err := decimal.NewFromString(p.Occupancy)
		if err != nil {
			summary.Reject(&engine.ValidationError{Field: "occupancy", Reason: err.Error()})
			continue
		}
		adr, err := decimal.NewFromString(p.ADR)
		if err != nil {
			summary.Reject(&engine.ValidationError{Field: "adr", Reason: err.Error()})
			continue
		}
		raw = append(raw, engine.RawForecast{
			Date:       date,
			RoomTypeID: engine.RoomTypeID(p.RoomTypeID),
			Occupancy:  occ,
			ADR:        adr,
		})
	}

	h.mu.RLock()
	bridge := h.bridge
	h.mu.RUnlock()

	// Gap filling falls back to recent same-weekday history.
	history, err := h.Store.FactsInRange(r.Context(), trailingHistory(horizon), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read history", err)
		return
	}

	points, normSummary := bridge.Normalize(raw, horizon, history)
	merge(&summary, normSummary)

	written, err := bridge.Apply(r.Context(), h.Store, points, req.Force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist forecast", err)
		return
	}
	summary.Succeeded = written
	writeJSON(w, http.StatusOK, toBatchSummaryDTO(summary))
}

// trailingHistory is the fact window consulted for weekday gap filling:
// the eight weeks before the horizon.
func trailingHistory(horizon engine.Period) engine.Period {
	start := horizon.Start.AddDays(-56)
	end := horizon.Start.AddDays(-1)
	p, err := engine.NewPeriod(start, end)
	if err != nil {
		return horizon
	}
	return p
}

// GetForecast returns the normalized grid for a range.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	points, err := h.Store.ForecastsInRange(r.Context(), period, roomTypeFilter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read forecast", err)
		return
	}
	dtos := make([]ForecastPointDTO, len(points))
	for i, p := range points {
		dtos[i] = toForecastPointDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdjustForecast manually overrides one forecast point.
func (h *Handler) AdjustForecast(w http.ResponseWriter, r *http.Request) {
	var req AdjustForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	occ, err := decimal.NewFromString(req.Occupancy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occupancy", err)
		return
	}
	adr, err := decimal.NewFromString(req.ADR)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adr", err)
		return
	}

	h.mu.RLock()
	bridge := h.bridge
	h.mu.RUnlock()

	point, err := bridge.AdjustPoint(r.Context(), h.Store, date, engine.RoomTypeID(req.RoomTypeID), occ, adr)
	if err != nil {
		writeDomainError(w, "Failed to adjust forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastPointDTO(*point))
}

// =============================================================================
// RECOMMENDATION HANDLERS
// =============================================================================

// GenerateRecommendations runs the rule engine over a range and persists
// the resulting Pending recommendations.
func (h *Handler) GenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := parsePeriod(w, req.From, req.To)
	if !ok {
		return
	}

	h.mu.RLock()
	generator, rules := h.generator, h.rules
	h.mu.RUnlock()

	result, err := generator.Generate(r.Context(), period, rules, req.Force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Generation failed", err)
		return
	}

	dto := GenerationResultDTO{Created: result.Created, Replaced: result.Replaced}
	for _, c := range result.Conflicts {
		dto.Conflicts = append(dto.Conflicts, c.Error())
	}
	for _, s := range result.Skipped {
		dto.Skipped = append(dto.Skipped, s.Err.Error())
	}
	for _, warn := range result.Warnings {
		dto.Warnings = append(dto.Warnings, warn.String())
	}
	status := http.StatusOK
	if len(result.Conflicts) > 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto)
}

// ListRecommendations returns recommendations for a range, filterable by
// room type, channel, and state.
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}
	filter := engine.RecommendationFilter{Period: period, RoomTypeID: roomTypeFilter(r)}
	if v := r.URL.Query().Get("channel"); v != "" {
		id := engine.ChannelID(v)
		filter.ChannelID = &id
	}
	if v := r.URL.Query().Get("state"); v != "" {
		state := engine.RecommendationState(v)
		filter.State = &state
	}
	filter.IncludeSuperseded = r.URL.Query().Get("superseded") == "true"

	recs, err := h.Store.Recommendations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recommendations", err)
		return
	}
	dtos := make([]RecommendationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecommendationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveRecommendations approves pending rows. A single id may carry a
// rate override; bulk approvals always use the recommended rate.
func (h *Handler) ApproveRecommendations(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "No recommendation ids supplied", nil)
		return
	}

	h.mu.RLock()
	lifecycle := h.lifecycle
	h.mu.RUnlock()

	if len(req.IDs) == 1 {
		override, err := parseRate(req.Override)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid override rate", err)
			return
		}
		rec, err := lifecycle.Approve(r.Context(), engine.RecommendationID(req.IDs[0]), override)
		if err != nil {
			writeDomainError(w, "Approval failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toRecommendationDTO(*rec))
		return
	}

	if req.Override != "" {
		writeError(w, http.StatusBadRequest, "Rate override is only valid for a single id", nil)
		return
	}
	ids := make([]engine.RecommendationID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = engine.RecommendationID(id)
	}
	result := lifecycle.ApproveBulk(r.Context(), ids)
	writeJSON(w, http.StatusOK, toBulkResultDTO(result))
}

// RejectRecommendation rejects one pending row with a reason.
func (h *Handler) RejectRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.mu.RLock()
	lifecycle := h.lifecycle
	h.mu.RUnlock()

	rec, err := lifecycle.Reject(r.Context(), engine.RecommendationID(id), req.Reason)
	if err != nil {
		writeDomainError(w, "Rejection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationDTO(*rec))
}

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// GetApprovedForExport returns the approved rates for the export
// collaborator to write to the channel manager.
func (h *Handler) GetApprovedForExport(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	h.mu.RLock()
	lifecycle := h.lifecycle
	h.mu.RUnlock()

	recs, err := lifecycle.ApprovedForExport(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read approved rows", err)
		return
	}
	rows := make([]ExportRowDTO, len(recs))
	for i, rec := range recs {
		rows[i] = ExportRowDTO{
			Date:         rec.Date.String(),
			RoomTypeID:   string(rec.RoomTypeID),
			ChannelID:    string(rec.ChannelID),
			ApprovedRate: rec.FinalRate().String(),
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

// ConfirmExport marks every approved row in the range exported, after the
// export collaborator confirms its write.
func (h *Handler) ConfirmExport(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := parsePeriod(w, req.From, req.To)
	if !ok {
		return
	}

	h.mu.RLock()
	lifecycle := h.lifecycle
	h.mu.RUnlock()

	result, err := lifecycle.ConfirmExport(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Export confirmation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResultDTO(result))
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// ReloadConfig re-reads the configuration file and swaps in the new
// registry, rules and clamp bounds without a restart.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load(h.ConfigPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Configuration reload failed", err)
		return
	}
	h.applyConfig(cfg)
	h.Log.Info("configuration reloaded",
		zap.String("path", h.ConfigPath),
		zap.Int("rules", len(cfg.Rules)),
		zap.Int("problems", len(cfg.Problems)))

	resp := map[string]any{
		"rules":      len(cfg.Rules),
		"room_types": len(cfg.Registry.RoomTypes),
		"channels":   len(cfg.Registry.Channels),
	}
	if len(cfg.Problems) > 0 {
		problems := make([]string, len(cfg.Problems))
		for i, p := range cfg.Problems {
			problems[i] = p.Error()
		}
		resp["problems"] = problems
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePeriod(w http.ResponseWriter, from, to string) (engine.Period, bool) {
	start, err := engine.ParseDate(from)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'from' date", err)
		return engine.Period{}, false
	}
	end, err := engine.ParseDate(to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'to' date", err)
		return engine.Period{}, false
	}
	period, err := engine.NewPeriod(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return engine.Period{}, false
	}
	return period, true
}

func roomTypeFilter(r *http.Request) *engine.RoomTypeID {
	v := r.URL.Query().Get("room_type")
	if v == "" {
		return nil
	}
	id := engine.RoomTypeID(v)
	return &id
}

func merge(into *engine.BatchSummary, from engine.BatchSummary) {
	into.Succeeded += from.Succeeded
	into.Rejected += from.Rejected
	into.Errors = append(into.Errors, from.Errors...)
	into.Warnings = append(into.Warnings, from.Warnings...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain error categories to HTTP status codes.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, msg, err)
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, msg, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

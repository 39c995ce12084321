package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/quantinfo/stockrank/internal/indicator"
	"github.com/quantinfo/stockrank/internal/ingest"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// AdminHandler serves manual maintenance operations. Both endpoints run
// synchronously so the caller can await completion and see the tally.
type AdminHandler struct {
	orchestrator *ingest.Orchestrator
	indicators   *indicator.Engine
	cfg          config.IngestConfig
	logger       *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(orchestrator *ingest.Orchestrator, indicators *indicator.Engine, cfg config.IngestConfig, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		orchestrator: orchestrator,
		indicators:   indicators,
		cfg:          cfg,
		logger:       log,
	}
}

type refreshRequest struct {
	Symbols      []string `json:"symbols"`
	LookbackDays int      `json:"lookback_days"`
}

// Refresh triggers a history refresh for the given symbols, or the
// whole active universe when none are given.
// POST /api/admin/refresh
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = h.cfg.ManualLookbackDays
	}

	var (
		summary *ingest.Summary
		err     error
	)
	if len(req.Symbols) == 0 {
		summary, _, err = h.orchestrator.RefreshAll(ctx, req.LookbackDays)
	} else {
		summary, _, err = h.orchestrator.RefreshSome(ctx, req.Symbols, req.LookbackDays)
	}
	if err != nil {
		h.logger.WithError(err).Error("Manual refresh failed")
		respondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RecomputeIndicators recomputes indicator series for every active
// instrument.
// POST /api/admin/indicators
func (h *AdminHandler) RecomputeIndicators(w http.ResponseWriter, r *http.Request) {
	summary, err := h.indicators.ComputeAll(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Indicator recomputation failed")
		respondError(w, http.StatusInternalServerError, "indicator recomputation failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

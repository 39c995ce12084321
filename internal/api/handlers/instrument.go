package handlers

import (
	"net/http"
	"strings"

	"github.com/quantinfo/stockrank/internal/ingest"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// InstrumentHandler serves provider-backed instrument lookups.
type InstrumentHandler struct {
	orchestrator *ingest.Orchestrator
	logger       *logger.Logger
}

// NewInstrumentHandler creates a new instrument handler.
func NewInstrumentHandler(orchestrator *ingest.Orchestrator, log *logger.Logger) *InstrumentHandler {
	return &InstrumentHandler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

// Search runs a provider symbol search, marking matches that already
// exist locally.
// GET /api/instruments/search?q=apple
func (h *InstrumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	matches, err := h.orchestrator.SearchInstruments(r.Context(), query)
	if err != nil {
		h.logger.WithError(err).WithField("query", query).Error("Instrument search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"count":   len(matches),
		"results": matches,
	})
}

// Quotes returns latest quotes for the given comma-separated symbols,
// or the whole active universe when none are given.
// GET /api/instruments/quotes?symbols=AAPL,QCOM
func (h *InstrumentHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if raw := strings.TrimSpace(r.URL.Query().Get("symbols")); raw != "" {
		for _, symbol := range strings.Split(raw, ",") {
			if symbol = strings.TrimSpace(symbol); symbol != "" {
				symbols = append(symbols, strings.ToUpper(symbol))
			}
		}
	}

	quotes, err := h.orchestrator.RealtimeQuotes(r.Context(), symbols)
	if err != nil {
		h.logger.WithError(err).Error("Quote lookup failed")
		respondError(w, http.StatusInternalServerError, "quote lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(quotes),
		"quotes": quotes,
	})
}

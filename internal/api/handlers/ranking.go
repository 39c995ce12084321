package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantinfo/stockrank/internal/ranking"
	"github.com/quantinfo/stockrank/pkg/logger"
	"github.com/quantinfo/stockrank/pkg/redis"
)

// RankingHandler serves ranking queries, fronted by an optional cache.
type RankingHandler struct {
	service  *ranking.Service
	cache    *redis.Cache
	cacheTTL time.Duration
	logger   *logger.Logger
}

// NewRankingHandler creates a new ranking handler. cache may be a
// disabled no-op client.
func NewRankingHandler(service *ranking.Service, cache *redis.Cache, cacheTTL time.Duration, log *logger.Logger) *RankingHandler {
	return &RankingHandler{
		service:  service,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log,
	}
}

// rankingResponse is the wire shape of a ranking query.
type rankingResponse struct {
	Dimension string          `json:"dimension"`
	Count     int             `json:"count"`
	Entries   []ranking.Entry `json:"entries"`
}

// GetRanking returns one dimension's ordered list.
// GET /api/rankings/{dimension}?limit=N
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dimension := mux.Vars(r)["dimension"]

	if !ranking.ValidDimension(dimension) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown dimension %q", dimension))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cacheKey := fmt.Sprintf("rankings:%s:%d", dimension, limit)
	var cached rankingResponse
	if hit, err := h.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	entries, err := h.service.Rank(ctx, dimension, limit)
	if err != nil {
		h.logger.WithError(err).WithField("dimension", dimension).Error("Ranking query failed")
		respondError(w, http.StatusInternalServerError, "ranking query failed")
		return
	}
	if len(entries) == 0 {
		respondError(w, http.StatusNotFound, "no ranking data available")
		return
	}

	response := rankingResponse{
		Dimension: dimension,
		Count:     len(entries),
		Entries:   entries,
	}
	if err := h.cache.Set(ctx, cacheKey, response, h.cacheTTL); err != nil {
		h.logger.WithError(err).Warn("Failed to cache ranking response")
	}
	respondJSON(w, http.StatusOK, response)
}

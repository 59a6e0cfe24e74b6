package http

import (
	"net/http"

	"github.com/apien/apien/internal/observability"
)

// CacheStats reports response cache counters.
type CacheStats interface {
	Stats() (hits, misses, stores, storeFailures int64)
	HitRate() float64
}

// CacheSummary is the cache part of the stats response.
type CacheSummary struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Stores        int64   `json:"stores"`
	StoreFailures int64   `json:"store_failures"`
	HitRate       float64 `json:"hit_rate"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Dimensions []observability.DimensionStats          `json:"dimensions"`
	Latency    map[string]observability.LatencySummary `json:"latency"`
	Cache      *CacheSummary                           `json:"cache,omitempty"`
}

// StatsHandler serves filter usage, latency quantiles and cache counters.
type StatsHandler struct {
	stats *observability.QueryStats
	cache CacheStats
}

// NewStatsHandler creates a stats handler. cache may be nil.
func NewStatsHandler(stats *observability.QueryStats, cache CacheStats) *StatsHandler {
	return &StatsHandler{stats: stats, cache: cache}
}

// ServeHTTP writes the current snapshot.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}

	snap := h.stats.Snapshot()
	resp := StatsResponse{
		Dimensions: snap.Dimensions,
		Latency:    snap.Latency,
	}
	if resp.Dimensions == nil {
		resp.Dimensions = []observability.DimensionStats{}
	}
	if h.cache != nil {
		hits, misses, stores, failures := h.cache.Stats()
		resp.Cache = &CacheSummary{
			Hits:          hits,
			Misses:        misses,
			Stores:        stores,
			StoreFailures: failures,
			HitRate:       h.cache.HitRate(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

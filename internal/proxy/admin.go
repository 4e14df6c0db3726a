package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/keizman/overlay-relay/internal/httputil"
)

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	redisStatus := "disconnected"
	if h.store.Available() {
		redisStatus = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"redis":          redisStatus,
		"cache_ttl_days": h.store.TTLDays(r.Context()),
	})
}

// GetCacheTTL handles GET /config/cache-ttl.
func (h *Handler) GetCacheTTL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_ttl_days": h.store.TTLDays(r.Context()),
		"description":    "0 means never expire",
	})
}

// UpdateCacheTTL handles POST /config/cache-ttl. The new value applies to
// existing entries as well as future writes.
func (h *Handler) UpdateCacheTTL(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var payload struct {
		Days *int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Days == nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid days value")
		return
	}
	if *payload.Days < 0 {
		httputil.WriteBadRequestError(w, reqID, "days must be >= 0")
		return
	}

	if err := h.store.SetTTLDays(r.Context(), *payload.Days); err != nil {
		httputil.WriteInternalError(w, reqID, "Failed to update TTL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"cache_ttl_days": *payload.Days,
		"message":        "TTL updated. All existing cache entries refreshed.",
	})
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.EntryCount(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": "cache not connected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_entries":  count,
		"cache_ttl_days": h.store.TTLDays(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cumulusworks/weather-cache-service/internal/gateway"
	"github.com/cumulusworks/weather-cache-service/internal/lifecycle"
	"github.com/cumulusworks/weather-cache-service/internal/models"
)

const serviceName = "weather-cache-backend"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	gateway *gateway.Gateway
	logger  *zap.Logger
	// storePing, when set, is called by the health handler to check store
	// reachability. Nil when the cache is disabled.
	storePing func(ctx context.Context) error
}

// NewHandler returns a new Handler.
func NewHandler(gw *gateway.Gateway, logger *zap.Logger, storePing func(ctx context.Context) error) *Handler {
	return &Handler{
		gateway:   gw,
		logger:    logger,
		storePing: storePing,
	}
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Weather Cache Backend",
		"service": serviceName,
	})
}

// GetHealth handles GET /health. Reports shutting-down with 503 while the
// process is draining; otherwise healthy plus whether the cache is enabled
// and, when it is, a best-effort store reachability check.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":        "shutting-down",
			"cache_enabled": h.gateway.Enabled(),
		})
		return
	}

	resp := map[string]interface{}{
		"status":        "healthy",
		"cache_enabled": h.gateway.Enabled(),
	}
	if h.storePing != nil {
		if h.storePing(r.Context()) == nil {
			resp["store"] = "healthy"
		} else {
			resp["store"] = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckCache handles GET /api/cache/check?city=<string>. Always 200: every
// outcome, including store faults, is expressed in the cache-disposition
// payload.
func (h *Handler) CheckCache(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	result := h.gateway.Check(r.Context(), city)
	writeJSON(w, http.StatusOK, result)
}

// WriteCache handles POST /api/cache/write. 503 when the cache is not
// configured, 500 with a descriptive detail when the store rejects the write.
func (h *Handler) WriteCache(w http.ResponseWriter, r *http.Request) {
	var req models.CacheWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.gateway.Write(r.Context(), req.City, req.WeatherData)
	if err != nil {
		var werr *gateway.WriteError
		switch {
		case errors.Is(err, gateway.ErrCacheDisabled):
			writeDetail(w, http.StatusServiceUnavailable, "Cache not configured")
		case errors.As(err, &werr):
			writeDetail(w, http.StatusInternalServerError, "Cache write failed: "+werr.Err.Error())
		default:
			writeDetail(w, http.StatusInternalServerError, "Cache write failed: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error response as {"detail": msg}.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

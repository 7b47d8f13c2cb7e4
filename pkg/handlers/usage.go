package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/services"
)

const (
	defaultUsageHours = 24
	maxUsageHours     = 24 * 30
)

// UsageDataResponse wraps every usage analytics read.
type UsageDataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// UsageHandler serves read-only analytics over the usage log.
type UsageHandler struct {
	usageService services.UsageService
	logger       *zap.Logger
}

// NewUsageHandler creates a new usage analytics handler.
func NewUsageHandler(usageService services.UsageService, logger *zap.Logger) *UsageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageHandler{
		usageService: usageService,
		logger:       logger.Named("usage-handler"),
	}
}

// RegisterRoutes registers the usage handler's routes on the given mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/usage"

	mux.HandleFunc("GET "+base+"/hourly", h.Hourly)
	mux.HandleFunc("GET "+base+"/errors", h.Errors)
	mux.HandleFunc("GET "+base+"/query-types", h.QueryTypes)
}

// Hourly handles GET /api/usage/hourly?hours=N.
func (h *UsageHandler) Hourly(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(w, r, "hours", defaultUsageHours, maxUsageHours)
	if !ok {
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	data, err := h.usageService.HourlyUsage(r.Context(), since)
	if err != nil {
		h.logger.Error("Failed to read hourly usage", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to fetch usage analytics")
		return
	}
	h.write(w, data)
}

// Errors handles GET /api/usage/errors?limit=N.
func (h *UsageHandler) Errors(w http.ResponseWriter, r *http.Request) {
	// Zero lets the repository apply its own default.
	limit, ok := intParam(w, r, "limit", 0, 0)
	if !ok {
		return
	}

	data, err := h.usageService.ErrorBreakdown(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read error breakdown", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to fetch error analysis")
		return
	}
	h.write(w, data)
}

// QueryTypes handles GET /api/usage/query-types.
func (h *UsageHandler) QueryTypes(w http.ResponseWriter, r *http.Request) {
	data, err := h.usageService.QueryTypePerformance(r.Context())
	if err != nil {
		h.logger.Error("Failed to read query type performance", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to fetch query type performance")
		return
	}
	h.write(w, data)
}

func (h *UsageHandler) write(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, UsageDataResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to encode usage response", zap.Error(err))
	}
}

// intParam parses a positive integer query parameter. maxN of zero means unbounded.
// On a malformed value it writes a 400 and returns false.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, maxN int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_parameter", name+" must be a positive integer")
		return 0, false
	}
	if maxN > 0 && n > maxN {
		n = maxN
	}
	return n, true
}

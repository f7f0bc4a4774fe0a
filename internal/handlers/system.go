package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// SystemHandlers serves the operational surface under /internal: the full
// dependency health report and the counter allocator.
type SystemHandlers struct {
	authn  *auth.Authenticator
	system services.SystemService
}

const maxSystemBodySize = 4 * 1024

// NewSystemHandlers constructs internal system handlers.
func NewSystemHandlers(authn *auth.Authenticator, system services.SystemService) *SystemHandlers {
	return &SystemHandlers{
		authn:  authn,
		system: system,
	}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *SystemHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/health", h.healthReport)
	r.Post("/counters/next", h.nextCounterValue)
}

func (h *SystemHandlers) healthReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ensureService(ctx, w) {
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_report_failed", "failed to build health report", http.StatusInternalServerError))
		return
	}

	payload := readyzResponse{
		Status:      report.Status,
		Version:     report.Version,
		Environment: report.Environment,
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.String()
	}
	if len(report.Checks) > 0 {
		payload.Checks = make(map[string]healthCheckPayload, len(report.Checks))
		for name, check := range report.Checks {
			entry := healthCheckPayload{
				Status: check.Status,
				Detail: check.Detail,
				Error:  check.Error,
			}
			if check.Latency > 0 {
				entry.Latency = check.Latency.String()
			}
			payload.Checks[name] = entry
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type counterRequest struct {
	CounterID string `json:"counter_id"`
	Step      int64  `json:"step"`
}

type counterResponse struct {
	CounterID string `json:"counter_id"`
	Value     int64  `json:"value"`
}

func (h *SystemHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ensureService(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, maxSystemBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req counterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.CounterID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "counter_id is required", http.StatusBadRequest))
		return
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: strings.TrimSpace(req.CounterID),
		Step:      req.Step,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("counter_failed", "failed to allocate counter value", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, counterResponse{
		CounterID: strings.TrimSpace(req.CounterID),
		Value:     value,
	})
}

func (h *SystemHandlers) ensureService(ctx context.Context, w http.ResponseWriter) bool {
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

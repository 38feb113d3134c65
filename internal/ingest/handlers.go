package ingest

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/ingest/auth"
	"github.com/lqt0707/monitor/internal/model"
	"github.com/lqt0707/monitor/internal/pipeline"
)

type handlers struct {
	deps Deps
	log  *zap.Logger
	auth *auth.Cache
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) reject(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: reason})
}

// handleReport implements POST /api/monitor/report.
func (h *handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	proj := projectFromContext(r.Context())

	body := http.MaxBytesReader(w, r.Body, h.deps.Config.MaxBodyBytes)
	defer r.Body.Close()

	var dto model.ReportDTO
	if err := json.NewDecoder(body).Decode(&dto); err != nil {
		if h.deps.Metrics != nil {
			h.deps.Metrics.ReportsRejectedTotal.WithLabelValues("invalid_body").Inc()
		}
		h.reject(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if dto.ProjectID == "" {
		dto.ProjectID = proj.ProjectID
	}
	if dto.ProjectID != proj.ProjectID {
		h.reject(w, http.StatusForbidden, "project_mismatch")
		return
	}
	if err := dto.Validate(); err != nil {
		if h.deps.Metrics != nil {
			h.deps.Metrics.ReportsRejectedTotal.WithLabelValues("invalid_body").Inc()
		}
		h.reject(w, http.StatusBadRequest, "invalid_body")
		return
	}

	job := pipeline.ReportJob{ProjectID: dto.ProjectID, Report: dto, ReceivedAt: time.Now()}
	if h.deps.EnqueueReport == nil || !h.deps.EnqueueReport(job) {
		if h.deps.Metrics != nil {
			h.deps.Metrics.ReportsRejectedTotal.WithLabelValues("rate_limited").Inc()
		}
		h.reject(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	if h.deps.Metrics != nil {
		h.deps.Metrics.ReportsReceivedTotal.WithLabelValues(string(dto.Type)).Inc()
	}
	w.WriteHeader(http.StatusAccepted)
}

// healthResponse is returned by every /api/health* variant.
type healthResponse struct {
	Status string `json:"status"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *handlers) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

type detailedHealth struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (h *handlers) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, detailedHealth{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks: map[string]string{
			"queues": "ok",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package handlers provides HTTP handlers for the triage API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/api/middleware"
	"github.com/clinicaflow/go-triage/internal/audit"
	"github.com/clinicaflow/go-triage/internal/diagnostics"
	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/export/fhir"
	"github.com/clinicaflow/go-triage/internal/observability/metrics"
	"github.com/clinicaflow/go-triage/internal/pipeline"
	"github.com/clinicaflow/go-triage/internal/policy"
)

// StatusClientClosedRequest is the nginx 499 convention used for
// cancellations that fire before a result exists.
const StatusClientClosedRequest = 499

// TriageHandler handles the triage endpoints.
type TriageHandler struct {
	pipeline *pipeline.Pipeline
	snapshot *policy.Snapshot
	doctor   *diagnostics.Collector
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewTriageHandler creates a new handler. doctor and metrics may be nil.
func NewTriageHandler(p *pipeline.Pipeline, snapshot *policy.Snapshot, doctor *diagnostics.Collector, m *metrics.Metrics, logger *zap.Logger) *TriageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageHandler{pipeline: p, snapshot: snapshot, doctor: doctor, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *TriageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/triage", h.Triage)
	r.Post("/triage/fhir", h.TriageFHIR)
	r.Post("/triage/audit", h.TriageAudit)
	r.Get("/policy-pack", h.PolicyPack)
	r.Get("/doctor", h.Doctor)
	return r
}

// Triage handles POST /triage
func (h *TriageHandler) Triage(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.run(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// TriageFHIR handles POST /triage/fhir: the pipeline result exported as a
// FHIR bundle. ?redact=1 drops demographics and free text.
func (h *TriageHandler) TriageFHIR(w http.ResponseWriter, r *http.Request) {
	result, in, ok := h.run(w, r)
	if !ok {
		return
	}
	bundle := fhir.BuildBundle(in, result, r.URL.Query().Get("redact") == "1")
	h.writeJSON(w, http.StatusOK, bundle)
}

// TriageAudit handles POST /triage/audit: a zip of the audit bundle.
func (h *TriageHandler) TriageAudit(w http.ResponseWriter, r *http.Request) {
	result, in, ok := h.run(w, r)
	if !ok {
		return
	}
	data, err := audit.WriteZip(in, result, r.URL.Query().Get("redact") == "1")
	if err != nil {
		h.logger.Error("audit bundle failed", zap.Error(err))
		h.jsonError(w, "internal", "failed to build audit bundle", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_bundle.zip"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// PolicyPack handles GET /policy-pack
func (h *TriageHandler) PolicyPack(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"source": h.snapshot.Source(),
		"sha256": h.snapshot.SHA256(),
		"pack":   h.snapshot.Pack(),
	})
}

// Doctor handles GET /doctor
func (h *TriageHandler) Doctor(w http.ResponseWriter, r *http.Request) {
	if h.doctor == nil {
		h.jsonError(w, "internal", "diagnostics not configured", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, h.doctor.Collect(r.Context()))
}

// run decodes the intake, executes the pipeline, and writes any error
// response. The bool reports whether a result was produced.
func (h *TriageHandler) run(w http.ResponseWriter, r *http.Request) (*triage.TriageResult, *triage.Intake, bool) {
	var in triage.Intake
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.jsonError(w, "intake_invalid", "request body exceeds the configured limit", http.StatusRequestEntityTooLarge)
		} else {
			h.jsonError(w, "intake_invalid", "malformed JSON body", http.StatusBadRequest)
		}
		if h.metrics != nil {
			h.metrics.TriagesRejected.Inc()
		}
		return nil, nil, false
	}

	result, err := h.pipeline.Triage(r.Context(), &in, middleware.GetRequestID(r.Context()))
	if err != nil {
		var vErr *triage.ValidationError
		switch {
		case errors.As(err, &vErr):
			if h.metrics != nil {
				h.metrics.TriagesRejected.Inc()
			}
			h.jsonError(w, "intake_invalid", vErr.Message, http.StatusBadRequest)
		case errors.Is(err, pipeline.ErrCancelled):
			h.jsonError(w, "cancelled", "request cancelled before a result was produced", StatusClientClosedRequest)
		default:
			h.logger.Error("triage failed", zap.Error(err))
			h.jsonError(w, "internal", "unexpected pipeline failure", http.StatusInternalServerError)
		}
		return nil, nil, false
	}
	return result, &in, true
}

func (h *TriageHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", zap.Error(err))
	}
}

func (h *TriageHandler) jsonError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

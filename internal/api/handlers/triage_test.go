package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/api/middleware"
	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/inference"
	"github.com/clinicaflow/go-triage/internal/pipeline"
	"github.com/clinicaflow/go-triage/internal/policy"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
	"github.com/clinicaflow/go-triage/internal/stages/communication"
	"github.com/clinicaflow/go-triage/internal/stages/evidence"
	"github.com/clinicaflow/go-triage/internal/stages/reasoning"
	"github.com/clinicaflow/go-triage/internal/stages/safety"
	"github.com/clinicaflow/go-triage/internal/stages/structuring"
)

func newTestRouter(t *testing.T, apiKey string, maxBytes int64) http.Handler {
	t.Helper()
	rules := rulebook.Default()
	snapshot, err := policy.Load("", zap.NewNop())
	require.NoError(t, err)

	p := pipeline.New(
		structuring.New(rules),
		reasoning.New(inference.DefaultBackendConfig(), nil, true, zap.NewNop()),
		evidence.New(snapshot, 2),
		safety.New(rules),
		communication.New(inference.DefaultBackendConfig(), nil, true, zap.NewNop()),
		5*time.Second,
		nil,
		zap.NewNop(),
	)
	h := NewTriageHandler(p, snapshot, nil, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(apiKey))
		r.Use(middleware.MaxBytes(maxBytes))
		r.Mount("/", h.Routes())
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTriageEndpointReturnsResult(t *testing.T) {
	router := newTestRouter(t, "", 0)
	rec := postJSON(t, router, "/api/v1/triage",
		`{"chief_complaint":"crushing chest pain","vitals":{"heart_rate":128,"systolic_bp":82,"spo2":94,"temperature_c":37.0}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result triage.TriageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, triage.TierCritical, result.RiskTier)
	assert.True(t, result.EscalationRequired)
	assert.Len(t, result.Trace, 5)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), result.RequestID)
}

func TestTriageEndpointRejectsInvalidIntake(t *testing.T) {
	router := newTestRouter(t, "", 0)

	rec := postJSON(t, router, "/api/v1/triage", `{"chief_complaint":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "intake_invalid", errBody["code"])

	rec = postJSON(t, router, "/api/v1/triage", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriageEndpointRejectsOversizedPayload(t *testing.T) {
	router := newTestRouter(t, "", 128)
	big := `{"chief_complaint":"chest pain","history":"` + strings.Repeat("x", 4096) + `"}`
	rec := postJSON(t, router, "/api/v1/triage", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	router := newTestRouter(t, "secret", 0)

	rec := postJSON(t, router, "/api/v1/triage", `{"chief_complaint":"rash"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, router, "/api/v1/triage", `{"chief_complaint":"rash"}`,
		map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/api/v1/triage", `{"chief_complaint":"rash"}`,
		map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicyPackEndpoint(t *testing.T) {
	router := newTestRouter(t, "", 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/policy-pack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Source string      `json:"source"`
		SHA256 string      `json:"sha256"`
		Pack   policy.Pack `json:"pack"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.SHA256, 64)
	assert.NotEmpty(t, body.Pack.Policies)
}

func TestTriageFHIREndpoint(t *testing.T) {
	router := newTestRouter(t, "", 0)
	rec := postJSON(t, router, "/api/v1/triage/fhir",
		`{"chief_complaint":"mild sore throat","vitals":{"heart_rate":78}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var bundle map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Equal(t, "Bundle", bundle["resourceType"])
}

func TestTriageAuditEndpointReturnsZip(t *testing.T) {
	router := newTestRouter(t, "", 0)
	rec := postJSON(t, router, "/api/v1/triage/audit", `{"chief_complaint":"rash"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

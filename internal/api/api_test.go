package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vallemarketing/valle360-teste-sub009/config"
	"github.com/vallemarketing/valle360-teste-sub009/internal/auth"
	"github.com/vallemarketing/valle360-teste-sub009/internal/domain"
	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/saga"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
)

// MockTransitionService is a mock implementation of TransitionService
type MockTransitionService struct {
	mock.Mock
}

func (m *MockTransitionService) List(ctx context.Context, q services.ListQuery) ([]models.WorkflowTransition, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]models.WorkflowTransition), args.Error(1)
}

func (m *MockTransitionService) Update(ctx context.Context, cmd services.UpdateCommand) (*models.WorkflowTransition, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowTransition), args.Error(1)
}

func (m *MockTransitionService) Execute(ctx context.Context, id, actorID string) (*services.ExecuteResult, error) {
	args := m.Called(ctx, id, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ExecuteResult), args.Error(1)
}

// MockSignatureHandler is a mock implementation of SignatureHandler
type MockSignatureHandler struct {
	mock.Mock
}

func (m *MockSignatureHandler) Handle(ctx context.Context, ev signature.CanonicalEvent) (*saga.Result, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Result), args.Error(1)
}

type webhookLogs struct {
	rows []models.WebhookLog
	err  error
}

func (w *webhookLogs) Create(_ context.Context, l *models.WebhookLog) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, *l)
	return nil
}

type eventReader struct {
	filter repositories.EventLogFilter
}

func (e *eventReader) List(_ context.Context, f repositories.EventLogFilter) ([]models.EventLog, error) {
	e.filter = f
	return []models.EventLog{}, nil
}

const (
	adminToken   = "admin-token"
	financeToken = "finance-token"
	adminUserID  = "7d3e1c2b-5a4f-4e6d-9c8b-1a2b3c4d5e6f"
	contractID   = "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f"
)

type testServer struct {
	router      *gin.Engine
	transitions *MockTransitionService
	signatures  *MockSignatureHandler
	webhookLogs *webhookLogs
	events      *eventReader
	handler     *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		transitions: new(MockTransitionService),
		signatures:  new(MockSignatureHandler),
		webhookLogs: &webhookLogs{},
		events:      &eventReader{},
	}
	ts.handler = &Handler{
		Transitions: ts.transitions,
		Signatures:  ts.signatures,
		Registry:    signature.DefaultRegistry(),
		Verifier:    signature.NewVerifier(map[string]string{"clicksign": "shh"}),
		WebhookLogs: ts.webhookLogs,
		Events:      ts.events,
		Metrics:     metrics.NewMetrics(),
		HealthChecks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	}
	authn := auth.NewAuthenticator(config.AuthConfig{
		Tokens: []config.TokenConfig{
			{Token: adminToken, UserID: adminUserID, Role: "admin"},
			{Token: financeToken, UserID: uuid.NewString(), Role: "finance"},
		},
		AdminRoles: []string{"super_admin", "admin"},
	})
	ts.router = NewRouter(config.ServerConfig{}, ts.handler, authn, nil)
	return ts
}

func (ts *testServer) do(method, path, token string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTransitionsRequireAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/workflow-transitions", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/workflow-transitions", "bogus", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPatch, "/workflow-transitions", financeToken, []byte(`{"id":"x","status":"completed"}`), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, rec)["code"])

	ts.transitions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestListTransitions(t *testing.T) {
	ts := newTestServer(t)
	ts.transitions.On("List", mock.Anything, services.ListQuery{
		Status:       "pending",
		FromArea:     "juridico",
		ToArea:       "financeiro",
		TriggerEvent: "contract.signed",
		Limit:        1,
	}).Return([]models.WorkflowTransition{{ID: uuid.New(), Status: "pending"}}, nil)

	rec := ts.do(http.MethodGet, "/workflow-transitions?status=pending&fromArea=juridico&to_area=financeiro&trigger_event=contract.signed&limit=0", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["transitions"], 1)
	ts.transitions.AssertExpectations(t)
}

func TestListTransitionsRejectsUnknownStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.transitions.On("List", mock.Anything, mock.Anything).
		Return([]models.WorkflowTransition(nil), &domain.ValidationError{Field: "status", Message: `unknown status "weird"`})

	rec := ts.do(http.MethodGet, "/workflow-transitions?status=weird", adminToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["code"])
}

func TestUpdateTransitionAcceptsAliases(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	ts.transitions.On("Update", mock.Anything, services.UpdateCommand{
		ID:      id.String(),
		Status:  "pending",
		Action:  "reroute",
		Note:    "redirecionado",
		ToArea:  "comercial",
		ActorID: adminUserID,
	}).Return(&models.WorkflowTransition{ID: id, ToArea: "comercial", Status: "pending"}, nil)

	body := []byte(`{"id":"` + id.String() + `","status":"pending","action":"reroute","completion_note":"redirecionado","toArea":"comercial"}`)
	rec := ts.do(http.MethodPatch, "/workflow-transitions", adminToken, body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "comercial", out["transition"].(map[string]interface{})["to_area"])
	ts.transitions.AssertExpectations(t)
}

func TestUpdateTransitionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &domain.ValidationError{Field: "to_area", Message: "to_area is required to reroute"}, http.StatusBadRequest},
		{"not found", errors.Wrap(repositories.ErrNotFound, "failed to get workflow transition"), http.StatusNotFound},
		{"storage", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.transitions.On("Update", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := ts.do(http.MethodPatch, "/workflow-transitions", adminToken, []byte(`{"id":"a","status":"pending"}`), nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestUpdateTransitionRejectsBadJSON(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPatch, "/workflow-transitions", adminToken, []byte(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteTransition(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.NewString()
	ts.transitions.On("Execute", mock.Anything, id, adminUserID).Return(&services.ExecuteResult{
		Transition:      &models.WorkflowTransition{Status: "completed"},
		TaskID:          "task-1",
		BoardID:         "financeiro",
		AlreadyExecuted: true,
	}, nil)

	rec := ts.do(http.MethodPost, "/workflow-transitions/execute", adminToken, []byte(`{"id":"`+id+`"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "task-1", out["task_id"])
	assert.Equal(t, true, out["already_executed"])
	assert.Nil(t, out["client_id"])

	rec = ts.do(http.MethodPost, "/workflow-transitions/execute", adminToken, []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignatureWebhookSigned(t *testing.T) {
	ts := newTestServer(t)
	ts.signatures.On("Handle", mock.Anything, mock.MatchedBy(func(ev signature.CanonicalEvent) bool {
		return ev.Provider == "autentique" && ev.EventType == "completed" && ev.ContractID == contractID
	})).Return(&saga.Result{Status: saga.ResultCompleted}, nil)

	body := []byte(`{"document_token":"t","status":"signed","metadata":{"contract_id":"` + contractID + `"}}`)
	rec := ts.do(http.MethodPost, "/webhooks/digital-signature", "", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	require.Len(t, ts.webhookLogs.rows, 1)
	row := ts.webhookLogs.rows[0]
	assert.Equal(t, "autentique", row.Provider)
	assert.True(t, row.Processed)
	assert.Equal(t, contractID, row.ContractID)
	assert.Equal(t, int64(1), ts.handler.Metrics.Counter(metrics.WebhooksReceived+":autentique"))
}

func TestSignatureWebhookRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
		code    int
	}{
		{"unknown provider", `{"foo":"bar"}`, nil, http.StatusBadRequest},
		{"unknown header", `{"foo":"bar"}`, map[string]string{"x-signature-provider": "adobe"}, http.StatusBadRequest},
		{"unparsable", `{{{`, nil, http.StatusBadRequest},
		{"missing contract id", `{"internal_event":true,"event_type":"signed"}`, nil, http.StatusBadRequest},
		{"unsigned clicksign", `{"event":{"name":"close"},"document":{"key":"k","external_id":"` + contractID + `"}}`, nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodPost, "/webhooks/digital-signature", "", []byte(tt.body), tt.headers)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])

			ts.signatures.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
			require.Len(t, ts.webhookLogs.rows, 1)
			assert.False(t, ts.webhookLogs.rows[0].Processed)
			assert.NotNil(t, ts.webhookLogs.rows[0].Error)
		})
	}
}

func TestSignatureWebhookVerifiesHMAC(t *testing.T) {
	ts := newTestServer(t)
	ts.signatures.On("Handle", mock.Anything, mock.Anything).Return(&saga.Result{Status: saga.ResultCancelled}, nil)

	body := []byte(`{"event":{"name":"refusal"},"document":{"key":"k","external_id":"` + contractID + `"}}`)
	sig := "sha256=" + hex.EncodeToString(signature.Sign("shh", body))
	rec := ts.do(http.MethodPost, "/webhooks/digital-signature", "", body, map[string]string{"X-Signature": sig})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignatureWebhookSagaFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.webhookLogs.err = errors.New("webhook_logs missing")
	ts.signatures.On("Handle", mock.Anything, mock.Anything).
		Return(&saga.Result{Status: saga.ResultPartial}, errors.Wrap(errors.New("timeout"), "failed to activate contract"))

	body := []byte(`{"internal_event":true,"event_type":"signed","contract_id":"` + contractID + `"}`)
	rec := ts.do(http.MethodPost, "/webhooks/digital-signature", "", body, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "providers retry on 5xx")
}

func TestEventLogEndpoints(t *testing.T) {
	ts := newTestServer(t)
	corr := uuid.New()

	rec := ts.do(http.MethodGet, "/event-log?entity_type=contract&entity_id=abc&correlation_id="+corr.String()+"&limit=9000", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "contract", ts.events.filter.EntityType)
	assert.Equal(t, services.MaxListLimit, ts.events.filter.Limit)
	require.NotNil(t, ts.events.filter.CorrelationID)
	assert.Equal(t, corr, *ts.events.filter.CorrelationID)

	rec = ts.do(http.MethodGet, "/event-log?correlation_id=nope", adminToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/event-log/search?q=reroute", adminToken, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var disabled *search.ElasticClient
	ts.handler.Search = disabled
	rec = ts.do(http.MethodGet, "/event-log/search?q=reroute", adminToken, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	ts.handler.HealthChecks["redis"] = func(context.Context) error { return errors.New("down") }
	rec = ts.do(http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "counters")
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", nil, map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

package internal

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewsync/internal/advisor"
	"github.com/crewbase/crewsync/internal/audit"
	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/config"
	"github.com/crewbase/crewsync/internal/coordinator"
	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/internal/eventbus"
	"github.com/crewbase/crewsync/internal/notify"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	env := &config.Env{BaseEnv: config.BaseEnv{APIKey: "sekret"}}
	store := board.NewStore(filepath.Join(t.TempDir(), "board.yaml"))
	bus := eventbus.New[*event.Change]()
	auditor := audit.NewAuditor(nil, 0, 0, nil, nil)
	adv := advisor.New(notify.SlogNotifier{}, nil, 10)
	return NewServer(env, coordinator.New(store, bus), auditor, adv, bus, nil, nil)
}

func TestAPIKeyMiddleware(t *testing.T) {
	s := testServer(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := s.apiKeyMiddleware(next)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health bypasses auth", "/health", nil, http.StatusOK},
		{"missing key rejected", "/api/report", nil, http.StatusUnauthorized},
		{"wrong key rejected", "/api/report", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key accepted", "/api/report", map[string]string{"X-API-Key": "sekret"}, http.StatusOK},
		{"bearer token accepted", "/api/report", map[string]string{"Authorization": "Bearer sekret"}, http.StatusOK},
		{"bearer wrong token rejected", "/api/report", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleBoard_NoSnapshot(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleBoard(rec, httptest.NewRequest(http.MethodGet, "/api/board", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReport_RunsChecksOnDemand(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleReport(rec, httptest.NewRequest(http.MethodGet, "/api/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"overall"`)
}

func TestHandleSuggestions_EmptyIsJSONArray(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleSuggestions(rec, httptest.NewRequest(http.MethodGet, "/api/suggestions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleProvision_NotConfigured(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleProvisionWorkspace(rec, httptest.NewRequest(http.MethodPost, "/api/workspaces", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/orchestrator"
)

func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	store, err := config.Open(filepath.Join(t.TempDir(), "config.json"), zerolog.Nop())
	require.NoError(t, err)
	orch := orchestrator.New(store, zerolog.Nop())
	return New(orch, zerolog.Nop()), orch
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestGetConfig_ReturnsCurrentConfig(t *testing.T) {
	s, orch := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/etvr/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.RootConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, orch.Store().Current().Version, got.Version)
}

func TestGetTracker_UnknownUUIDReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/etvr/config/tracker?uuid=does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTracker_KnownUUIDReturnsTracker(t *testing.T) {
	s, orch := newTestServer(t)
	uuid := orch.Store().Current().Trackers[0].UUID

	rec := doRequest(t, s, http.MethodGet, "/etvr/config/tracker?uuid="+uuid, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.TrackerConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uuid, got.UUID)
}

func TestDeleteTracker_UnknownUUIDReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodDelete, "/etvr/config/tracker?uuid=does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTracker_AddsTracker(t *testing.T) {
	s, orch := newTestServer(t)
	before := len(orch.Store().Current().Trackers)

	rec := doRequest(t, s, http.MethodPost, "/etvr/config/tracker", `{"name":"third eye"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, orch.Store().Current().Trackers, before+1)
}

func TestStartStopStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/etvr/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"running":false}`, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/etvr/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/etvr/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/etvr/stop", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestFeedCamera_UnknownUUIDReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/etvr/feed/does-not-exist/camera", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/registry"
	"github.com/assistmesh/adapter-runtime/internal/config"
	"github.com/assistmesh/adapter-runtime/internal/monitoring"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg := registry.New(registry.Config{}, nil, nil, nil, nil)
	require.NoError(t, reg.Start(context.Background()))
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })

	health := monitoring.NewHealthMonitor(monitoring.HealthConfig{}, reg, nil, nil)
	resources, err := monitoring.NewResourceMonitor(monitoring.ResourceConfig{}, reg.Bus(), nil, nil)
	require.NoError(t, err)

	factories := map[string]adapters.Factory{
		"echo": func(cfg map[string]interface{}) (adapters.Adapter, error) {
			return adapters.NewEchoAdapter(cfg), nil
		},
		"strict": func(cfg map[string]interface{}) (adapters.Adapter, error) {
			return strictAdapter{}, nil
		},
	}
	return NewServer(config.APIConfig{ListenAddress: ":0"}, reg, health, resources, factories, nil)
}

// strictAdapter declares an input schema so execute payloads get validated
type strictAdapter struct{}

func (strictAdapter) LoadMetadata() (*adapters.Metadata, error) {
	return &adapters.Metadata{
		Name:          "strict",
		Version:       "1.0.0",
		Kind:          adapters.KindSoft,
		SecurityLevel: adapters.SecurityTrusted,
		Capabilities: []adapters.Capability{{
			Name:        "sum",
			InputSchema: []byte(`{"type":"object","required":["values"]}`),
		}},
	}, nil
}

func (strictAdapter) Initialize(ctx context.Context, config map[string]interface{}) error {
	return nil
}

func (strictAdapter) Process(ctx context.Context, input interface{}, execCtx *adapters.ExecutionContext) (interface{}, error) {
	return input, nil
}

func (strictAdapter) Capabilities() []adapters.Capability { return nil }

func (strictAdapter) HealthCheck(ctx context.Context) *adapters.HealthResult {
	return &adapters.HealthResult{IsHealthy: true, Status: "ok"}
}

func (strictAdapter) Cleanup(ctx context.Context) error { return nil }

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func registerEcho(t *testing.T, s *Server, id string) {
	t.Helper()
	w := doRequest(t, s, http.MethodPost, "/api/v1/adapters", `{"id": "`+id+`", "type": "echo"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandleRegister(t *testing.T) {
	s := newTestServer(t)

	t.Run("Success", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters", `{"id": "echo-1", "type": "echo"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := decodeBody(t, w)
		assert.Equal(t, "echo-1", body["id"])
		assert.Equal(t, "registered", body["status"])
		assert.Equal(t, "echo", body["name"])
	})

	t.Run("Duplicate", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters", `{"id": "echo-1", "type": "echo"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Unknown Type", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters", `{"id": "x", "type": "mystery"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing Fields", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters", `{"id": "x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleExecute(t *testing.T) {
	s := newTestServer(t)
	registerEcho(t, s, "echo-1")

	t.Run("Success", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters/echo-1/execute", `{"input": {"msg": "hi"}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decodeBody(t, w)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, map[string]interface{}{"msg": "hi"}, body["output"])
	})

	t.Run("Unknown Adapter", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters/missing/execute", `{"input": 1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters/echo-1/execute", `{"input": `)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Input Schema Violation", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/v1/adapters", `{"id": "strict-1", "type": "strict"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = doRequest(t, s, http.MethodPost, "/api/v1/adapters/strict-1/execute", `{"input": {"wrong": true}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, "a schema mismatch is the caller's fault, not a state conflict")
	})
}

func TestHandleUnregister(t *testing.T) {
	s := newTestServer(t)
	registerEcho(t, s, "echo-1")

	w := doRequest(t, s, http.MethodDelete, "/api/v1/adapters/echo-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, s, http.MethodDelete, "/api/v1/adapters/echo-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleList(t *testing.T) {
	s := newTestServer(t)
	registerEcho(t, s, "echo-1")
	registerEcho(t, s, "echo-2")

	w := doRequest(t, s, http.MethodGet, "/api/v1/adapters", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Len(t, body["adapters"], 2)

	w = doRequest(t, s, http.MethodGet, "/api/v1/adapters?kind=hard", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Empty(t, body["adapters"])
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	registerEcho(t, s, "echo-1")

	w := doRequest(t, s, http.MethodGet, "/api/v1/adapters/echo-1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	current := body["current"].(map[string]interface{})
	assert.Equal(t, true, current["is_healthy"])

	w = doRequest(t, s, http.MethodGet, "/api/v1/adapters/missing/health", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatistics(t *testing.T) {
	s := newTestServer(t)
	registerEcho(t, s, "echo-1")

	w := doRequest(t, s, http.MethodGet, "/api/v1/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	reg := body["registry"].(map[string]interface{})
	assert.Equal(t, 1.0, reg["total"])
	assert.Contains(t, body, "resources")
}

func TestHandleAlerts(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "active")
	assert.Contains(t, body, "history")
}

func TestLiveness(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

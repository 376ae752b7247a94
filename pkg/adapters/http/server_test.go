package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	httpAdapter "github.com/aretw0/conductor/pkg/adapters/http"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/observability"
	"github.com/aretw0/conductor/pkg/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Health(t *testing.T) {
	h, err := httpAdapter.NewHandler(httpAdapter.WithVersion("1.2.3"))
	require.NoError(t, err)

	w := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(t, h, "/info")
	assert.JSONEq(t, `{"app":"conductor","version":"1.2.3"}`, w.Body.String())
}

func TestHandler_Ready(t *testing.T) {
	healthy := true
	h, err := httpAdapter.NewHandler(httpAdapter.WithReady(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("redis down")
	}))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(t, h, "/readyz").Code)

	healthy = false
	w := serve(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis down")
}

func TestHandler_TaskSchema(t *testing.T) {
	h, err := httpAdapter.NewHandler()
	require.NoError(t, err)

	w := serve(t, h, "/schema/task")
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, schema.SchemaID, doc["$id"])
}

func TestHandler_Functions(t *testing.T) {
	reg, err := engine.NewRegistry()
	require.NoError(t, err)
	h, err := httpAdapter.NewHandler(httpAdapter.WithFunctions(reg))
	require.NoError(t, err)

	var body struct {
		Functions []string `json:"functions"`
	}
	require.NoError(t, json.Unmarshal(serve(t, h, "/functions").Body.Bytes(), &body))
	assert.Equal(t, []string{"false", "function", "int", "list", "map", "null", "text", "true"}, body.Functions)
}

func TestHandler_Metrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(promReg)
	require.NoError(t, err)
	h, err := httpAdapter.NewHandler(httpAdapter.WithGatherer(promReg))
	require.NoError(t, err)

	w := serve(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "conductor_tasks_in_flight")
}

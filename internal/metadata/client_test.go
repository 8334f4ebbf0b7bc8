package metadata

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newToolServer returns an httptest server serving /health and a fixed set
// of tool responses, counting tool calls.
func newToolServer(t *testing.T, responses map[string]any, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "healthy", "version": "1.0.0", "document_count": 42,
			})
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		tool := r.URL.Path[len("/mcp/tools/"):]
		resp, ok := responses[tool]
		if !ok {
			http.Error(w, "unknown tool", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestListCollections(t *testing.T) {
	srv := newToolServer(t, map[string]any{
		"listCollections": map[string]any{"collections": []string{"cdPipelineEvents", "deployments"}},
	}, nil)
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())
	got := c.ListCollections(context.Background(), "cicd_db")
	assert.Equal(t, []string{"cdPipelineEvents", "deployments"}, got)
}

func TestGetSchemaFallsBackOnEmpty(t *testing.T) {
	srv := newToolServer(t, map[string]any{
		"getSchema": map[string]any{"schema": map[string]any{}},
	}, nil)
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())
	got := c.GetSchema(context.Background(), "cicd_db", "cdPipelineEvents")
	assert.Equal(t, FallbackSchema(), got)
}

func TestDistinctValuesDegradesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())

	// HTTP 500 must absorb into the empty fallback, never an error or panic.
	got := c.GetDistinctValues(context.Background(), "cicd_db", "cdPipelineEvents", "event_type", 50)
	assert.Empty(t, got)
	assert.True(t, c.Enabled(), "per-call failure must not disable the client")
}

func TestErrorFieldInBodyIsFailure(t *testing.T) {
	srv := newToolServer(t, map[string]any{
		"getIndexes": map[string]any{"indexes": []any{}, "error": "no such collection"},
	}, nil)
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())
	got := c.GetIndexes(context.Background(), "cicd_db", "nope")
	assert.Empty(t, got)
}

func TestCachingAvoidsSecondFetch(t *testing.T) {
	var calls atomic.Int64
	srv := newToolServer(t, map[string]any{
		"getFieldStatistics": map[string]any{
			"statistics": map[string]any{"count": 10, "min": 0, "max": 900, "avg": 120.5},
		},
	}, &calls)
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())

	first := c.GetFieldStatistics(context.Background(), "cicd_db", "cdPipelineEvents", "duration_seconds")
	second := c.GetFieldStatistics(context.Background(), "cicd_db", "cdPipelineEvents", "duration_seconds")

	require.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "second call should be served from cache")

	// Clearing the cache forces a refetch.
	c.ClearCache()
	c.GetFieldStatistics(context.Background(), "cicd_db", "cdPipelineEvents", "duration_seconds")
	assert.Equal(t, int64(2), calls.Load())
}

func TestDisabledClientMakesNoNetworkCalls(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: false, CacheTTL: time.Minute}, testLogger())
	ctx := context.Background()

	assert.Equal(t, FallbackCollections(), c.ListCollections(ctx, "cicd_db"))
	assert.Equal(t, FallbackSchema(), c.GetSchema(ctx, "cicd_db", "cdPipelineEvents"))
	assert.Empty(t, c.SampleDocuments(ctx, "cicd_db", "cdPipelineEvents", 5, nil))
	assert.Empty(t, c.GetDistinctValues(ctx, "cicd_db", "cdPipelineEvents", "user", 20))
	assert.Empty(t, c.GetFieldStatistics(ctx, "cicd_db", "cdPipelineEvents", "duration_seconds"))
	assert.Empty(t, c.GetIndexes(ctx, "cicd_db", "cdPipelineEvents"))

	assert.Equal(t, int64(0), calls.Load(), "disabled client must not touch the network")
}

func TestUnreachableServiceStaysEnabled(t *testing.T) {
	// Nothing listens here; the probe warns but does not disable.
	c := New(Options{BaseURL: "http://127.0.0.1:1", Enabled: true, CacheTTL: time.Minute}, testLogger())
	assert.True(t, c.Enabled())
}

func TestUnhealthyServiceDisables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())
	assert.False(t, c.Enabled())
}

func TestSampleLimitCapped(t *testing.T) {
	var gotLimit float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		gotLimit, _ = params["limit"].(float64)
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": []any{}})
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Enabled: true, CacheTTL: time.Minute}, testLogger())
	c.SampleDocuments(context.Background(), "cicd_db", "cdPipelineEvents", 500, nil)
	assert.Equal(t, float64(50), gotLimit)
}

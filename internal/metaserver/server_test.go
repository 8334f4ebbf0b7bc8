package metaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type fakeStore struct {
	pingErr   error
	schemaErr error
	gotLimit  int
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error) {
	return []string{"cdPipelineEvents"}, nil
}

func (f *fakeStore) InferSchema(ctx context.Context, collection string) (map[string]any, error) {
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return map[string]any{"event_type": "string", "source": "string"}, nil
}

func (f *fakeStore) SampleDocuments(ctx context.Context, collection string, limit int, filter bson.M) ([]bson.M, error) {
	f.gotLimit = limit
	return []bson.M{{"event_type": "Build Stage Started"}}, nil
}

func (f *fakeStore) DistinctValues(ctx context.Context, collection, field string, limit int) ([]any, error) {
	return []any{"GitLab", "Jenkins"}, nil
}

func (f *fakeStore) FieldStatistics(ctx context.Context, collection, field string) (map[string]any, error) {
	return map[string]any{"count": int64(42), "min": 1.5, "max": 900.0}, nil
}

func (f *fakeStore) ListIndexes(ctx context.Context, collection string) ([]bson.M, error) {
	return []bson.M{{"name": "_id_"}}, nil
}

func (f *fakeStore) CountDocuments(ctx context.Context, collection string) (int64, error) {
	return 42, nil
}

func newTestServer(store *fakeStore) *Server {
	return New(Config{
		Store:        store,
		Collection:   "cdPipelineEvents",
		Version:      "test",
		Logger:       slog.New(slog.DiscardHandler),
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
}

func callTool(t *testing.T, s *Server, tool string, params map[string]any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, err := json.Marshal(params)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp/tools/"+tool, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return rec, result
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(42), health["document_count"])
}

func TestHealthDegraded(t *testing.T) {
	s := newTestServer(&fakeStore{pingErr: fmt.Errorf("no reachable servers")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
}

func TestListCollectionsTool(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec, result := callTool(t, s, "listCollections", map[string]any{"database": "cicd_db"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"cdPipelineEvents"}, result["collections"])
}

func TestGetSchemaTool(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec, result := callTool(t, s, "getSchema", map[string]any{"collection": "cdPipelineEvents"})
	require.Equal(t, http.StatusOK, rec.Code)
	schema, ok := result["schema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", schema["event_type"])
}

func TestToolErrorReportedInBody(t *testing.T) {
	s := newTestServer(&fakeStore{schemaErr: fmt.Errorf("collection scan failed")})

	rec, result := callTool(t, s, "getSchema", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, result["error"], "collection scan failed")
}

func TestSampleLimitCapped(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(store)

	rec, result := callTool(t, s, "sampleDocuments", map[string]any{"limit": 500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, store.gotLimit)
	assert.Equal(t, float64(1), result["count"])
}

func TestDistinctValuesTool(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec, result := callTool(t, s, "getDistinctValues", map[string]any{"field": "source"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"GitLab", "Jenkins"}, result["values"])
	assert.Equal(t, "source", result["field"])
}

func TestFieldStatisticsTool(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec, result := callTool(t, s, "getFieldStatistics", map[string]any{"field": "duration_seconds"})
	require.Equal(t, http.StatusOK, rec.Code)
	stats, ok := result["statistics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), stats["count"])
}

func TestUnknownTool(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec, result := callTool(t, s, "dropDatabase", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, result["error"], "unknown tool")
}

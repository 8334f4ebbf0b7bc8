package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmsoil/anviksha/internal/generate"
	"github.com/firmsoil/anviksha/internal/metadata"
	"github.com/firmsoil/anviksha/internal/model"
	"github.com/firmsoil/anviksha/internal/pipeline"
)

type fakeGenerator struct {
	pipeline    pipeline.Pipeline
	explanation string
	gotContext  string
}

func (f *fakeGenerator) GeneratePipeline(ctx context.Context, question string, history []generate.Turn, schemaContext string) (pipeline.Pipeline, string) {
	f.gotContext = schemaContext
	return f.pipeline, f.explanation
}

func (f *fakeGenerator) Summarize(ctx context.Context, question, explanation string, results []map[string]any) string {
	return fmt.Sprintf("Summary of %d results.", len(results))
}

type fakeExecutor struct {
	result      pipeline.ExecutionResult
	err         error
	gotPipeline pipeline.Pipeline
}

func (f *fakeExecutor) Execute(ctx context.Context, collection string, p pipeline.Pipeline) (pipeline.ExecutionResult, error) {
	f.gotPipeline = p
	return f.result, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, gen *fakeGenerator, exec *fakeExecutor, ping fakePinger) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	meta := metadata.New(metadata.Options{
		BaseURL:  "http://127.0.0.1:1",
		Enabled:  false,
		CacheTTL: time.Minute,
	}, logger)

	handlers := NewHandlers(HandlersDeps{
		DB:                  ping,
		Meta:                meta,
		Generator:           gen,
		Executor:            exec,
		Collection:          "cdPipelineEvents",
		Database:            "cicd_db",
		Logger:              logger,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	return New(ServerConfig{
		Handlers:     handlers,
		Logger:       logger,
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery(t *testing.T) {
	gen := &fakeGenerator{
		pipeline:    pipeline.Pipeline{{"$match": map[string]any{"source": "GitLab"}}},
		explanation: "filters GitLab events",
	}
	exec := &fakeExecutor{result: pipeline.ExecutionResult{
		Documents: []map[string]any{{"event_type": "Build Stage Started"}},
		Count:     1,
	}}
	s := newTestServer(t, gen, exec, fakePinger{})

	rec := doJSON(t, s, http.MethodPost, "/api/query", model.QueryRequest{Query: "show GitLab events"})
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data model.QueryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	resp := envelope.Data
	assert.Equal(t, "show GitLab events", resp.QueryText)
	assert.Equal(t, "filters GitLab events", resp.PipelineExplanation)
	assert.Equal(t, "Summary of 1 results.", resp.Summary)
	assert.Equal(t, "static", resp.SchemaSource)

	// The executed pipeline got the mandatory cap appended.
	require.Len(t, exec.gotPipeline, 2)
	_, hasLimit := exec.gotPipeline[1]["$limit"]
	assert.True(t, hasLimit)

	// The disabled gateway handed the generator the static schema text.
	assert.Equal(t, metadata.FallbackSchemaText, gen.gotContext)
}

func TestHandleQueryValidation(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{}, &fakeExecutor{}, fakePinger{})

	rec := doJSON(t, s, http.MethodPost, "/api/query", model.QueryRequest{Query: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryInvalidPipeline(t *testing.T) {
	exec := &fakeExecutor{err: &pipeline.QueryInvalidError{
		Pipeline: `[{"$bogus":1}]`,
		Native:   "Unrecognized pipeline stage",
	}}
	s := newTestServer(t, &fakeGenerator{pipeline: pipeline.Pipeline{{"$bogus": 1}}}, exec, fakePinger{})

	rec := doJSON(t, s, http.MethodPost, "/api/query", model.QueryRequest{Query: "do something odd"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, model.ErrCodeQueryInvalid, envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, `[{"$bogus":1}]`)
}

func TestHandleQueryExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{err: &pipeline.QueryExecutionError{Err: context.DeadlineExceeded}}
	s := newTestServer(t, &fakeGenerator{pipeline: pipeline.Pipeline{}}, exec, fakePinger{})

	rec := doJSON(t, s, http.MethodPost, "/api/query", model.QueryRequest{Query: "slow query"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, model.ErrCodeQueryFailed, envelope.Error.Code)
}

func TestHandleHealthDegraded(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{}, &fakeExecutor{}, fakePinger{err: fmt.Errorf("no reachable servers")})

	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "degraded", envelope.Data.Status)
}

func TestHandleSchemaStatic(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{}, &fakeExecutor{}, fakePinger{})

	rec := doJSON(t, s, http.MethodGet, "/api/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data model.SchemaResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "static", envelope.Data.Source)
	assert.Equal(t, metadata.FallbackSchemaText, envelope.Data.Context)
}

func TestHandleClearCache(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{}, &fakeExecutor{}, fakePinger{})

	rec := doJSON(t, s, http.MethodPost, "/api/metadata/clear-cache", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDistinctValuesUnavailableWhenDisabled(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{}, &fakeExecutor{}, fakePinger{})

	rec := doJSON(t, s, http.MethodGet, "/api/collections/cdPipelineEvents/distinct/event_type", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{}, &fakeExecutor{}, fakePinger{})

	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

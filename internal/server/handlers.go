package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/firmsoil/anviksha/internal/generate"
	"github.com/firmsoil/anviksha/internal/metadata"
	"github.com/firmsoil/anviksha/internal/model"
	"github.com/firmsoil/anviksha/internal/pipeline"
)

// Generator proposes pipelines and summarizes results.
// Implemented by generate.Client.
type Generator interface {
	GeneratePipeline(ctx context.Context, question string, history []generate.Turn, schemaContext string) (pipeline.Pipeline, string)
	Summarize(ctx context.Context, question, explanation string, results []map[string]any) string
}

// Executor runs a safety-checked pipeline.
// Implemented by pipeline.Executor.
type Executor interface {
	Execute(ctx context.Context, collection string, p pipeline.Pipeline) (pipeline.ExecutionResult, error)
}

// Pinger checks the backing store connection.
// Implemented by storage.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  Pinger
	meta                *metadata.Client
	generator           Generator
	executor            Executor
	collection          string
	database            string
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  Pinger
	Meta                *metadata.Client
	Generator           Generator
	Executor            Executor
	Collection          string
	Database            string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		meta:                d.Meta,
		generator:           d.Generator,
		executor:            d.Executor,
		collection:          d.Collection,
		database:            d.Database,
		logger:              d.Logger,
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleQuery handles POST /api/query: natural-language question in,
// generated pipeline, results, and summary out.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	ctx := r.Context()
	h.logger.Info("query received", "query", req.Query, "session_id", req.SessionID)

	schemaContext := h.meta.BuildEnrichedContext(ctx, h.database, h.collection)

	candidate, explanation := h.generator.GeneratePipeline(ctx, req.Query, req.History, schemaContext)
	safe := pipeline.EnforceSafety(candidate)

	result, err := h.executor.Execute(ctx, h.collection, safe)
	if err != nil {
		var invalid *pipeline.QueryInvalidError
		if errors.As(err, &invalid) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeQueryInvalid, invalid.Error())
			return
		}
		writeError(w, r, http.StatusBadGateway, model.ErrCodeQueryFailed, err.Error())
		return
	}

	summary := h.generator.Summarize(ctx, req.Query, explanation, result.Documents)

	schemaSource := "static"
	if h.meta.Enabled() {
		schemaSource = "live"
	}
	writeJSON(w, r, http.StatusOK, model.QueryResponse{
		QueryText:           req.Query,
		Summary:             summary,
		PipelineExplanation: explanation,
		Pipeline:            safe,
		Results:             result.Documents,
		MetadataEnabled:     h.meta.Enabled(),
		SchemaSource:        schemaSource,
	})
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "connected"
	if err := h.db.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = "error: " + err.Error()
	}

	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:   status,
		DBStatus: dbStatus,
		Metadata: map[string]any{
			"enabled":    h.meta.Enabled(),
			"server_url": h.meta.BaseURL(),
		},
		Version: h.version,
	})
}

// HandleSchema handles GET /api/schema.
func (h *Handlers) HandleSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.meta.Enabled() {
		writeJSON(w, r, http.StatusOK, model.SchemaResponse{
			Source:     "static",
			Collection: h.collection,
			Context:    metadata.FallbackSchemaText,
			Warning:    "metadata service disabled",
		})
		return
	}

	writeJSON(w, r, http.StatusOK, model.SchemaResponse{
		Source:     "live",
		Collection: h.collection,
		Context:    h.meta.BuildEnrichedContext(ctx, h.database, h.collection),
		Fields:     h.meta.GetSchema(ctx, h.database, h.collection),
	})
}

// HandleMetadataStatus handles GET /api/metadata/status.
func (h *Handlers) HandleMetadataStatus(w http.ResponseWriter, r *http.Request) {
	resp := model.MetadataStatusResponse{
		Enabled:   h.meta.Enabled(),
		ServerURL: h.meta.BaseURL(),
		CacheTTL:  int(h.meta.CacheTTL().Seconds()),
	}
	if !h.meta.Enabled() {
		resp.Error = "metadata service disabled or unreachable"
		writeJSON(w, r, http.StatusOK, resp)
		return
	}

	resp.Collections = h.meta.ListCollections(r.Context(), h.database)
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleClearCache handles POST /api/metadata/clear-cache. Operator action.
func (h *Handlers) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	h.meta.ClearCache()
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "success", "message": "metadata cache cleared"})
}

// HandleDistinctValues handles GET /api/collections/{collection}/distinct/{field}.
func (h *Handlers) HandleDistinctValues(w http.ResponseWriter, r *http.Request) {
	if !h.meta.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "metadata service disabled")
		return
	}

	collection := r.PathValue("collection")
	field := r.PathValue("field")
	limit := queryInt(r, "limit", 100)

	values := h.meta.GetDistinctValues(r.Context(), h.database, collection, field, limit)
	writeJSON(w, r, http.StatusOK, model.DistinctValuesResponse{
		Collection:     collection,
		Field:          field,
		DistinctValues: values,
		Count:          len(values),
		Limit:          limit,
	})
}

// HandleSampleDocuments handles GET /api/collections/{collection}/sample.
func (h *Handlers) HandleSampleDocuments(w http.ResponseWriter, r *http.Request) {
	if !h.meta.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "metadata service disabled")
		return
	}

	collection := r.PathValue("collection")
	limit := queryInt(r, "limit", 10)

	samples := h.meta.SampleDocuments(r.Context(), h.database, collection, limit, nil)
	writeJSON(w, r, http.StatusOK, model.SampleResponse{
		Collection: collection,
		Samples:    samples,
		Count:      len(samples),
		Limit:      limit,
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

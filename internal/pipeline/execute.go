package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("anviksha/pipeline")

// executeTimeout bounds a single aggregation round trip.
const executeTimeout = 30 * time.Second

// Aggregator runs an aggregation pipeline against a named collection.
// Implemented by storage.DB; tests substitute fakes.
type Aggregator interface {
	Aggregate(ctx context.Context, collection string, stages []bson.M) ([]bson.M, error)
}

// ExecutionResult is the normalized output of a pipeline run.
type ExecutionResult struct {
	Documents []map[string]any `json:"documents"`
	Count     int              `json:"count"`
}

// Executor runs safety-checked pipelines. Stateless between calls.
type Executor struct {
	store  Aggregator
	logger *slog.Logger
}

// NewExecutor creates an executor over the given store.
func NewExecutor(store Aggregator, logger *slog.Logger) *Executor {
	return &Executor{store: store, logger: logger}
}

// Execute runs the pipeline against the target collection.
//
// A rejection by the store (unknown operator, bad field reference) surfaces
// as *QueryInvalidError carrying the attempted stage sequence and the native
// error text. Any other failure surfaces as *QueryExecutionError. On success
// every value is normalized to a portable representation before return.
func (e *Executor) Execute(ctx context.Context, collection string, p Pipeline) (ExecutionResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Execute", trace.WithAttributes(
		attribute.String("db.collection", collection),
		attribute.Int("pipeline.stages", len(p)),
	))
	defer span.End()

	if err := CheckReadOnly(p); err != nil {
		return ExecutionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	stages := make([]bson.M, len(p))
	for i, stage := range p {
		stages[i] = bson.M(stage)
	}

	raw, err := e.store.Aggregate(ctx, collection, stages)
	if err != nil {
		rendered := Render(p)
		if isCommandRejection(err) {
			e.logger.Error("pipeline rejected by store", "pipeline", rendered, "error", err)
			return ExecutionResult{}, &QueryInvalidError{Pipeline: rendered, Native: err.Error()}
		}
		e.logger.Error("pipeline execution failed", "error", err)
		return ExecutionResult{}, &QueryExecutionError{Err: err}
	}

	docs := make([]map[string]any, len(raw))
	for i, doc := range raw {
		docs[i] = normalizeDocument(doc)
	}

	span.SetAttributes(attribute.Int("result.count", len(docs)))
	e.logger.Info("pipeline executed", "collection", collection, "stages", len(p), "documents", len(docs))
	return ExecutionResult{Documents: docs, Count: len(docs)}, nil
}

// isCommandRejection reports whether the store rejected the pipeline itself,
// as opposed to failing while running it.
func isCommandRejection(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr)
}

// normalizeDocument converts store-native values into portable ones:
// ObjectIDs become hex strings, timestamps become RFC 3339 strings, and
// nested documents and arrays are walked recursively.
func normalizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return t.String()
	case bson.M:
		return normalizeDocument(t)
	case map[string]any:
		return normalizeDocument(bson.M(t))
	case bson.D:
		m := make(bson.M, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return normalizeDocument(m)
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

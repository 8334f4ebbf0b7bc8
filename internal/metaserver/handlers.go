package metaserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const toolTimeout = 15 * time.Second

// sampleLimitMax bounds per-call document sampling.
const sampleLimitMax = 50

type handlers struct {
	store      Store
	collection string
	version    string
	logger     *slog.Logger
}

// toolParams is the request body common to all tool endpoints. Unknown
// fields are tolerated; absent ones take defaults.
type toolParams struct {
	Database   string         `json:"database"`
	Collection string         `json:"collection"`
	Field      string         `json:"field"`
	Limit      int            `json:"limit"`
	Filter     map[string]any `json:"filter"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	var count int64
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("health ping failed", "error", err)
		status = "degraded"
	} else {
		count, _ = h.store.CountDocuments(ctx, h.collection)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        h.version,
		"document_count": count,
	})
}

// handleTool dispatches a tool invocation. Store failures are reported in
// the 200 body's error field so callers can distinguish tool errors from
// transport errors.
func (h *handlers) handleTool(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")

	var params toolParams
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if params.Collection == "" {
		params.Collection = h.collection
	}

	ctx, cancel := context.WithTimeout(r.Context(), toolTimeout)
	defer cancel()

	result, err := h.dispatch(ctx, tool, params)
	if err != nil {
		if errors.Is(err, errUnknownTool) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown tool: " + tool})
			return
		}
		h.logger.Error("tool call failed", "tool", tool, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
		return
	}

	h.logger.Debug("tool call served", "tool", tool, "collection", params.Collection)
	writeJSON(w, http.StatusOK, result)
}

var errUnknownTool = errors.New("unknown tool")

func (h *handlers) dispatch(ctx context.Context, tool string, p toolParams) (map[string]any, error) {
	switch tool {
	case "listCollections":
		names, err := h.store.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"collections": names}, nil

	case "getSchema":
		schema, err := h.store.InferSchema(ctx, p.Collection)
		if err != nil {
			return nil, err
		}
		return map[string]any{"collection": p.Collection, "schema": schema}, nil

	case "sampleDocuments":
		limit := p.Limit
		if limit <= 0 {
			limit = 5
		}
		if limit > sampleLimitMax {
			limit = sampleLimitMax
		}
		docs, err := h.store.SampleDocuments(ctx, p.Collection, limit, bson.M(p.Filter))
		if err != nil {
			return nil, err
		}
		return map[string]any{"collection": p.Collection, "documents": docs, "count": len(docs)}, nil

	case "getDistinctValues":
		limit := p.Limit
		if limit <= 0 {
			limit = 100
		}
		values, err := h.store.DistinctValues(ctx, p.Collection, p.Field, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"field": p.Field, "values": values, "count": len(values)}, nil

	case "getFieldStatistics":
		stats, err := h.store.FieldStatistics(ctx, p.Collection, p.Field)
		if err != nil {
			return nil, err
		}
		return map[string]any{"field": p.Field, "statistics": stats}, nil

	case "getIndexes":
		indexes, err := h.store.ListIndexes(ctx, p.Collection)
		if err != nil {
			return nil, err
		}
		return map[string]any{"collection": p.Collection, "indexes": indexes}, nil
	}

	return nil, errUnknownTool
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

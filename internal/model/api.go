// Package model defines the HTTP API request and response types.
package model

import (
	"fmt"
	"time"

	"github.com/firmsoil/anviksha/internal/generate"
	"github.com/firmsoil/anviksha/internal/pipeline"
)

// QueryRequest is the request body for POST /api/query.
type QueryRequest struct {
	Query     string          `json:"query"`
	SessionID string          `json:"session_id,omitempty"`
	History   []generate.Turn `json:"history,omitempty"`
}

// Validate checks the request is well-formed.
func (r QueryRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query is required")
	}
	if len(r.Query) > 4096 {
		return fmt.Errorf("query exceeds 4096 characters")
	}
	return nil
}

// QueryResponse is the response body for POST /api/query.
type QueryResponse struct {
	QueryText           string            `json:"query_text"`
	Summary             string            `json:"summary"`
	PipelineExplanation string            `json:"pipeline_explanation"`
	Pipeline            pipeline.Pipeline `json:"mongodb_pipeline"`
	Results             []map[string]any  `json:"results"`
	MetadataEnabled     bool              `json:"metadata_enabled"`
	SchemaSource        string            `json:"schema_source"` // "live" or "static".
}

// MetadataStatusResponse is the response body for GET /api/metadata/status.
type MetadataStatusResponse struct {
	Enabled     bool     `json:"enabled"`
	ServerURL   string   `json:"server_url"`
	CacheTTL    int      `json:"cache_ttl_seconds"`
	Collections []string `json:"collections,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// SchemaResponse is the response body for GET /api/schema.
type SchemaResponse struct {
	Source     string         `json:"source"` // "live" or "static".
	Collection string         `json:"collection"`
	Context    string         `json:"context"`
	Fields     map[string]any `json:"fields,omitempty"`
	Warning    string         `json:"warning,omitempty"`
}

// DistinctValuesResponse is the response body for the distinct-values endpoint.
type DistinctValuesResponse struct {
	Collection     string `json:"collection"`
	Field          string `json:"field"`
	DistinctValues []any  `json:"distinct_values"`
	Count          int    `json:"count"`
	Limit          int    `json:"limit"`
}

// SampleResponse is the response body for the sample-documents endpoint.
type SampleResponse struct {
	Collection string           `json:"collection"`
	Samples    []map[string]any `json:"samples"`
	Count      int              `json:"count"`
	Limit      int              `json:"limit"`
}

// HealthResponse is the response body for GET /api/health.
type HealthResponse struct {
	Status   string         `json:"status"` // "ok" or "degraded".
	DBStatus string         `json:"db_status"`
	Metadata map[string]any `json:"metadata_status"`
	Version  string         `json:"version"`
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeQueryInvalid  = "QUERY_INVALID"
	ErrCodeQueryFailed   = "QUERY_FAILED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

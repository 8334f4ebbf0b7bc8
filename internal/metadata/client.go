// Package metadata is the single point of contact with the metadata service
// that describes the backing MongoDB store.
//
// Every operation is routed through a fingerprint-keyed TTL cache and maps
// any failure to a documented fallback value. Callers never see a raw error
// from a metadata operation: the system degrades to static schema data
// rather than failing a request.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/firmsoil/anviksha/internal/schemacache"
)

const (
	probeTimeout = 5 * time.Second
	callTimeout  = 10 * time.Second

	// sampleLimitMax caps sampleDocuments requests regardless of what the
	// caller asks for.
	sampleLimitMax = 50
)

// Client calls the metadata service's tool endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *schemacache.Cache
	enabled    bool
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Enabled  bool // Force-disable regardless of reachability when false.
	CacheTTL time.Duration
}

// New creates a metadata client and, when enabled, probes the service's
// health endpoint. An unreachable service logs a warning but stays enabled:
// the service may still be starting, and every operation degrades to its
// fallback on failure anyway. An unhealthy response disables the client.
func New(opts Options, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: callTimeout},
		cache:      schemacache.New(opts.CacheTTL),
		enabled:    opts.Enabled,
		logger:     logger,
	}

	if !c.enabled {
		logger.Warn("metadata client disabled, using static fallback schema")
		return c
	}

	logger.Info("metadata client initialized", "url", c.baseURL)
	c.verifyConnection()
	return c
}

// verifyConnection checks the service's health endpoint.
func (c *Client) verifyConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		c.logger.Error("metadata health probe failed", "error", err)
		c.enabled = false
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Tolerate a slow service startup; individual calls fall back.
		c.logger.Warn("metadata service not reachable yet, will retry on first use",
			"url", c.baseURL, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("metadata health check failed", "status", resp.StatusCode)
		c.enabled = false
		return
	}

	var health struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		DocumentCount int64  `json:"document_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil {
		c.logger.Info("metadata service connection verified",
			"version", health.Version, "document_count", health.DocumentCount)
	}
}

// Enabled reports whether the client talks to the live metadata service.
func (c *Client) Enabled() bool {
	return c.enabled
}

// BaseURL returns the configured metadata service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CacheTTL returns the configured cache entry lifetime.
func (c *Client) CacheTTL() time.Duration {
	return c.cache.TTL()
}

// ClearCache drops all cached metadata. Operator action; the next call per
// fingerprint refetches.
func (c *Client) ClearCache() {
	c.cache.Clear()
	c.logger.Info("metadata cache cleared")
}

// callTool issues a tool request, consulting the cache first. The full
// result object is cached on success.
func (c *Client) callTool(ctx context.Context, tool string, params map[string]any) (map[string]any, error) {
	key := schemacache.Fingerprint(tool, params)
	if cached, ok := c.cache.Get(key); ok {
		if result, ok := cached.(map[string]any); ok {
			c.logger.Debug("metadata cache hit", "tool", tool)
			return result, nil
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal params: %w", err)
	}

	url := c.baseURL + "/mcp/tools/" + tool
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("metadata: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata: call %s: %w", tool, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("metadata: %s returned status %d: %s", tool, resp.StatusCode, snippet)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("metadata: decode %s response: %w", tool, err)
	}
	if errMsg, ok := result["error"].(string); ok && errMsg != "" {
		return nil, fmt.Errorf("metadata: %s reported error: %s", tool, errMsg)
	}

	c.cache.Put(key, result)
	return result, nil
}

// ListCollections returns the collection names in the database.
// Fallback: the single known event collection.
func (c *Client) ListCollections(ctx context.Context, database string) []string {
	if !c.enabled {
		return FallbackCollections()
	}

	result, err := c.callTool(ctx, "listCollections", map[string]any{"database": database})
	if err != nil {
		c.logger.Error("listCollections failed", "error", err)
		return FallbackCollections()
	}
	return toStringSlice(result["collections"])
}

// GetSchema returns the field→type map for a collection.
// Fallback: the static hand-authored schema.
func (c *Client) GetSchema(ctx context.Context, database, collection string) map[string]any {
	if !c.enabled {
		return FallbackSchema()
	}

	result, err := c.callTool(ctx, "getSchema", map[string]any{
		"database":   database,
		"collection": collection,
	})
	if err != nil {
		c.logger.Error("getSchema failed", "collection", collection, "error", err)
		return FallbackSchema()
	}
	schema, ok := result["schema"].(map[string]any)
	if !ok || len(schema) == 0 {
		c.logger.Error("getSchema returned no schema", "collection", collection)
		return FallbackSchema()
	}
	return schema
}

// SampleDocuments returns up to limit sample documents (capped at 50), with
// an optional filter. Fallback: empty list.
func (c *Client) SampleDocuments(ctx context.Context, database, collection string, limit int, filter map[string]any) []map[string]any {
	if !c.enabled {
		return nil
	}

	if limit > sampleLimitMax {
		limit = sampleLimitMax
	}
	params := map[string]any{
		"database":   database,
		"collection": collection,
		"limit":      limit,
	}
	if filter != nil {
		params["filter"] = filter
	}

	result, err := c.callTool(ctx, "sampleDocuments", params)
	if err != nil {
		c.logger.Error("sampleDocuments failed", "collection", collection, "error", err)
		return nil
	}
	return toDocumentSlice(result["documents"])
}

// GetDistinctValues returns up to limit distinct values for a field.
// Fallback: empty list.
func (c *Client) GetDistinctValues(ctx context.Context, database, collection, field string, limit int) []any {
	if !c.enabled {
		return nil
	}

	result, err := c.callTool(ctx, "getDistinctValues", map[string]any{
		"database":   database,
		"collection": collection,
		"field":      field,
		"limit":      limit,
	})
	if err != nil {
		c.logger.Error("getDistinctValues failed", "field", field, "error", err)
		return nil
	}
	values, _ := result["values"].([]any)
	c.logger.Debug("distinct values fetched", "field", field, "count", len(values))
	return values
}

// GetFieldStatistics returns count/min/max/avg for a field.
// Fallback: empty map.
func (c *Client) GetFieldStatistics(ctx context.Context, database, collection, field string) map[string]any {
	if !c.enabled {
		return map[string]any{}
	}

	result, err := c.callTool(ctx, "getFieldStatistics", map[string]any{
		"database":   database,
		"collection": collection,
		"field":      field,
	})
	if err != nil {
		c.logger.Error("getFieldStatistics failed", "field", field, "error", err)
		return map[string]any{}
	}
	stats, ok := result["statistics"].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return stats
}

// GetIndexes returns the collection's index descriptors.
// Fallback: empty list.
func (c *Client) GetIndexes(ctx context.Context, database, collection string) []map[string]any {
	if !c.enabled {
		return nil
	}

	result, err := c.callTool(ctx, "getIndexes", map[string]any{
		"database":   database,
		"collection": collection,
	})
	if err != nil {
		c.logger.Error("getIndexes failed", "collection", collection, "error", err)
		return nil
	}
	return toDocumentSlice(result["indexes"])
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toDocumentSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if doc, ok := item.(map[string]any); ok {
			out = append(out, doc)
		}
	}
	return out
}

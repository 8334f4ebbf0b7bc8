package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("anviksha/metadata")

// Bounds on how much live metadata goes into the generation context.
const (
	contextSampleLimit    = 5
	contextEventTypeLimit = 50
	contextSourceLimit    = 20
	contextUserLimit      = 20
)

// BuildEnrichedContext assembles the schema context string handed to the
// generation step: field schema, sample documents, distinct event types,
// sources and users, and index descriptors, each fetched through the
// cache-aware, fallback-safe tool operations.
//
// When the client is disabled, the static fallback text is returned verbatim
// with no network or cache access. Any failure during assembly also degrades
// to the static text; individual fetch failures are already absorbed into
// per-field fallbacks inside the tool operations.
func (c *Client) BuildEnrichedContext(ctx context.Context, database, collection string) string {
	if !c.enabled {
		return FallbackSchemaText
	}

	ctx, span := tracer.Start(ctx, "metadata.BuildEnrichedContext")
	defer span.End()

	text, err := c.buildContext(ctx, database, collection)
	if err != nil {
		c.logger.Error("enriched context build failed, using static schema", "error", err)
		return FallbackSchemaText
	}

	span.SetAttributes(attribute.Int("context.chars", len(text)))
	return text
}

func (c *Client) buildContext(ctx context.Context, database, collection string) (_ string, err error) {
	// The section renderers marshal arbitrary tool output; a malformed
	// payload must degrade to the static schema, not crash the request.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metadata: context assembly panic: %v", r)
		}
	}()

	schema := c.GetSchema(ctx, database, collection)
	samples := c.SampleDocuments(ctx, database, collection, contextSampleLimit, nil)
	eventTypes := c.GetDistinctValues(ctx, database, collection, "event_type", contextEventTypeLimit)
	sources := c.GetDistinctValues(ctx, database, collection, "source", contextSourceLimit)
	users := c.GetDistinctValues(ctx, database, collection, "user", contextUserLimit)
	indexes := c.GetIndexes(ctx, database, collection)

	parts := []string{
		fmt.Sprintf("Collection: %s", collection),
		"Source: Live Metadata Service (Real MongoDB Data)",
		"",
		"=== Field Schema ===",
		renderJSON(schema, "Schema unavailable"),
		"",
		"=== Available Event Types ===",
		renderValues(eventTypes, "No event types found"),
		renderTotal(len(eventTypes), "distinct types"),
		"",
		"=== Available Sources ===",
		renderValues(sources, "No sources found"),
		"",
		"=== Available Users ===",
		renderValues(users, "No users found"),
		renderTotal(len(users), "distinct users"),
		"",
		"=== Sample Documents ===",
		renderJSON(samples, "No samples available"),
		"",
		"=== Indexes (for query optimization) ===",
		renderJSON(indexes, "No indexes found"),
	}

	text := strings.Join(parts, "\n")
	c.logger.Info("built enriched schema context",
		"chars", len(text),
		"event_types", len(eventTypes),
		"sources", len(sources),
		"users", len(users),
	)
	return text, nil
}

func renderJSON(v any, empty string) string {
	if isEmpty(v) {
		return empty
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return empty
	}
	return string(data)
}

func renderValues(values []any, empty string) string {
	if len(values) == 0 {
		return empty
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}

func renderTotal(n int, noun string) string {
	if n == 0 {
		return "(none found)"
	}
	return fmt.Sprintf("(Total: %d %s)", n, noun)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

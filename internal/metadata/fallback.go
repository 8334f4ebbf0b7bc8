package metadata

// DefaultCollection is the primary CI/CD event collection.
const DefaultCollection = "cdPipelineEvents"

// FallbackCollections is the collection list used when the service is
// unavailable.
func FallbackCollections() []string {
	return []string{DefaultCollection}
}

// FallbackSchema is the static hand-authored field→type map used when live
// schema inference is unavailable.
func FallbackSchema() map[string]any {
	return map[string]any{
		"event_type":       map[string]any{"type": "string"},
		"event_timestamp":  map[string]any{"type": "date"},
		"user":             map[string]any{"type": "string"},
		"source":           map[string]any{"type": "string"},
		"duration_seconds": map[string]any{"type": "number"},
		"pipeline_id":      map[string]any{"type": "string"},
		"branch":           map[string]any{"type": "string"},
		"metadata":         map[string]any{"type": "object"},
	}
}

// FallbackSchemaText is the static schema description handed to the
// generation step when no live context can be built.
const FallbackSchemaText = `
Collection: cdPipelineEvents

Fields:
- event_type: string (e.g., 'Build Stage Started', 'SAST Security Scan Started')
- event_timestamp: datetime (ISO format)
- user: string (e.g., 'Jane Doe', 'John Smith')
- source: string (e.g., 'GitLab', 'Harness', 'Security Tool')
- duration_seconds: numeric (0 for instantaneous events, >0 for timed operations)
- pipeline_id: string (e.g., 'pipeline-100')
- branch: string (e.g., 'main', 'feature/login')
- metadata: object (contains environment, commit SHA, etc.)

Note: This is a fallback static schema. The metadata service is unavailable for dynamic context.
`

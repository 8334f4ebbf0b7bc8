package generate

import (
	"fmt"
	"strings"
)

func historyString(history []Turn) string {
	if len(history) == 0 {
		return "(no prior turns)"
	}
	parts := make([]string, len(history))
	for i, turn := range history {
		parts[i] = fmt.Sprintf("User: %s\nAssistant: %s", turn.Query, turn.Response)
	}
	return strings.Join(parts, "\n")
}

func enrichedSystemPrompt(question string, history []Turn, schemaContext string) string {
	return fmt.Sprintf(`You are a MongoDB query expert with access to real-time database schema information.

Your task: Translate the user's natural language query into a valid MongoDB aggregation pipeline.

CRITICAL RULES:
1. Output ONLY a JSON object with this structure: {"pipeline": [array of stages], "explanation": "brief explanation"}
2. Use the ACTUAL field names and values from the schema below - do NOT guess or make up field names
3. When filtering by specific values (e.g., event types), use EXACT matches from the "Available Event Types" list
4. Always limit results to 1000 documents maximum for safety
5. For duration calculations, filter out events where duration_seconds = 0 first
6. Use the indexes listed below to optimize query performance

=== DYNAMIC DATABASE CONTEXT (Real-Time) ===
%s

=== CONVERSATION HISTORY ===
%s

=== USER'S QUERY ===
%q

IMPORTANT: Base your pipeline on the ACTUAL data shown above, not assumptions.`,
		schemaContext, historyString(history), question)
}

const staticSchema = `Collection: cdPipelineEvents
Fields: event_type (string), event_timestamp (date), user (string),
        source (string), duration_seconds (number), pipeline_id (string)`

func staticSystemPrompt(question string, history []Turn) string {
	return fmt.Sprintf(`You are a MongoDB query expert.
Translate the query into a MongoDB aggregation pipeline.
Output JSON: {"pipeline": [...], "explanation": "..."}
Ensure the pipeline is safe: limit results to 1000, avoid destructive operations.

Schema: %s
History: %s
Query: %q`, staticSchema, historyString(history), question)
}

const summarySystemPrompt = `You are a helpful data analyst assistant.

Provide a concise, business-friendly summary of the query results.

GUIDELINES:
- Start with the key finding (e.g., "Found 15 security scan events...")
- Highlight important patterns or anomalies
- Use business-friendly language (avoid technical jargon)
- Keep the summary under 150 words
- If showing aggregated data, explain what the numbers mean

Output only plain text (no markdown, no formatting).`

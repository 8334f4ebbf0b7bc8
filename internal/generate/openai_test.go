package generate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOpenAI(t *testing.T, handler func(req chatRequest) (string, int)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %s", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		content, status := handler(req)
		if status != http.StatusOK {
			http.Error(w, content, status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func testClient(url string) *Client {
	return New(Options{BaseURL: url, APIKey: "test-key", Model: "gpt-4o-mini"}, slog.New(slog.DiscardHandler))
}

func TestGeneratePipeline(t *testing.T) {
	srv := newFakeOpenAI(t, func(req chatRequest) (string, int) {
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		return `{"pipeline": [{"$match": {"source": "GitLab"}}, {"$limit": 50}], "explanation": "GitLab events"}`, http.StatusOK
	})
	defer srv.Close()

	p, explanation := testClient(srv.URL).GeneratePipeline(context.Background(), "show GitLab events", nil, "schema ctx")

	require.Len(t, p, 2)
	assert.Equal(t, map[string]any{"source": "GitLab"}, p[0]["$match"])
	assert.Equal(t, "GitLab events", explanation)
}

func TestGeneratePipelineRetriesWithStaticSchema(t *testing.T) {
	attempts := 0
	srv := newFakeOpenAI(t, func(req chatRequest) (string, int) {
		attempts++
		if attempts == 1 {
			return "overloaded", http.StatusServiceUnavailable
		}
		return `{"pipeline": [{"$limit": 10}], "explanation": "fallback"}`, http.StatusOK
	})
	defer srv.Close()

	p, explanation := testClient(srv.URL).GeneratePipeline(context.Background(), "anything", nil, "ctx")

	assert.Equal(t, 2, attempts)
	require.Len(t, p, 1)
	assert.Contains(t, explanation, "static schema")
}

func TestGeneratePipelineLastResort(t *testing.T) {
	srv := newFakeOpenAI(t, func(req chatRequest) (string, int) {
		return "down", http.StatusInternalServerError
	})
	defer srv.Close()

	p, explanation := testClient(srv.URL).GeneratePipeline(context.Background(), "anything", nil, "ctx")

	require.Len(t, p, 1)
	assert.Equal(t, 100, p[0]["$limit"])
	assert.Contains(t, explanation, "Error generating pipeline")
}

func TestGeneratePipelineIncludesHistory(t *testing.T) {
	var systemPrompt string
	srv := newFakeOpenAI(t, func(req chatRequest) (string, int) {
		systemPrompt = req.Messages[0].Content
		return `{"pipeline": [], "explanation": "ok"}`, http.StatusOK
	})
	defer srv.Close()

	history := []Turn{{Query: "count events by source", Response: "Found 3 sources"}}
	testClient(srv.URL).GeneratePipeline(context.Background(), "and by user?", history, "ctx")

	assert.Contains(t, systemPrompt, "count events by source")
	assert.Contains(t, systemPrompt, "Found 3 sources")
}

func TestSummarize(t *testing.T) {
	srv := newFakeOpenAI(t, func(req chatRequest) (string, int) {
		assert.Nil(t, req.ResponseFormat)
		return "Found 2 build events from GitLab.", http.StatusOK
	})
	defer srv.Close()

	summary := testClient(srv.URL).Summarize(context.Background(), "how many builds?", "counts builds",
		[]map[string]any{{"count": 2}})
	assert.Equal(t, "Found 2 build events from GitLab.", summary)
}

func TestSummarizeWithoutAPIKey(t *testing.T) {
	c := New(Options{BaseURL: "http://unused", Model: "gpt-4o-mini"}, slog.New(slog.DiscardHandler))

	summary := c.Summarize(context.Background(), "q", "e", make([]map[string]any, 7))
	assert.Contains(t, summary, "7 results")
}

// Package generate translates natural-language questions into candidate
// aggregation pipelines, and summarizes results, via an OpenAI-compatible
// chat-completions API.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/firmsoil/anviksha/internal/pipeline"
)

const requestTimeout = 60 * time.Second

// Client calls a chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL string // e.g. "https://api.openai.com/v1".
	APIKey  string
	Model   string
}

// New creates a generation client.
func New(opts Options, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Turn is one prior exchange in the conversation.
type Turn struct {
	Query    string `json:"query"`
	Response string `json:"response,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GeneratePipeline proposes an aggregation pipeline for the question using
// the enriched schema context. On failure it retries once with the static
// schema prompt; if that also fails it returns a safe sampling pipeline with
// an error explanation rather than propagating the failure.
func (c *Client) GeneratePipeline(ctx context.Context, question string, history []Turn, schemaContext string) (pipeline.Pipeline, string) {
	p, explanation, err := c.generate(ctx, question, history, enrichedSystemPrompt(question, history, schemaContext))
	if err == nil {
		c.logger.Info("pipeline generated", "stages", len(p))
		return p, explanation
	}
	c.logger.Error("pipeline generation failed, retrying with static schema", "error", err)

	p, explanation, fallbackErr := c.generate(ctx, question, history, staticSystemPrompt(question, history))
	if fallbackErr == nil {
		return p, explanation + " (generated from static schema)"
	}
	c.logger.Error("fallback pipeline generation failed", "error", fallbackErr)

	return pipeline.Pipeline{{"$limit": 100}},
		fmt.Sprintf("Error generating pipeline: %v. Returning sample data.", err)
}

func (c *Client) generate(ctx context.Context, question string, history []Turn, systemPrompt string) (pipeline.Pipeline, string, error) {
	content, err := c.chat(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Generate an aggregation pipeline for: " + question},
		},
		Temperature:    0.1,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, "", err
	}

	var parsed struct {
		Pipeline    []map[string]any `json:"pipeline"`
		Explanation string           `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, "", fmt.Errorf("generate: parse model output: %w", err)
	}
	if parsed.Explanation == "" {
		parsed.Explanation = "No explanation provided"
	}

	p := make(pipeline.Pipeline, len(parsed.Pipeline))
	for i, stage := range parsed.Pipeline {
		p[i] = stage
	}
	return p, parsed.Explanation, nil
}

// summaryPreviewLimit bounds how many result documents are shown to the
// model when summarizing.
const summaryPreviewLimit = 10

// Summarize produces a short plain-language summary of the query results.
// Failures degrade to a count-only summary; this never blocks a response.
func (c *Client) Summarize(ctx context.Context, question, explanation string, results []map[string]any) string {
	if !c.Configured() {
		return fmt.Sprintf("Query returned %d results. (Summarization is not configured.)", len(results))
	}

	preview := results
	metadata := fmt.Sprintf("Total results: %d", len(results))
	if len(results) > summaryPreviewLimit {
		preview = results[:summaryPreviewLimit]
		metadata += fmt.Sprintf(" (showing first %d for summary)", summaryPreviewLimit)
	}
	previewJSON, _ := json.MarshalIndent(preview, "", "  ")

	userPrompt := fmt.Sprintf(
		"User asked: %q\n\nPipeline explanation: %q\n\nResults: %s\n%s\n\nProvide a clear summary of what was found.",
		question, explanation, metadata, previewJSON,
	)

	summary, err := c.chat(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		c.logger.Error("summarization failed", "error", err)
		return fmt.Sprintf("Query returned %d results. Error generating summary: %v", len(results), err)
	}
	return summary
}

// chat issues one chat-completions request and returns the first choice's
// content.
func (c *Client) chat(ctx context.Context, reqBody chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("generate: no API key configured")
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("generate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generate: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate: status %d: %s", resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("generate: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generate: no choices returned")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/grant-engine/internal/httputil"
	"github.com/pdiddy/grant-engine/pkg/types"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIBackend drafts via an OpenAI-compatible chat completions endpoint.
// Self-hosted gateways substitute their own base URL through configuration.
type OpenAIBackend struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	maxRetries int
	client     *http.Client
}

// NewOpenAIBackend builds an OpenAI drafting backend from configuration.
func NewOpenAIBackend(cfg types.GenerationConfig) *OpenAIBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &OpenAIBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  maxTokens,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name identifies the backend.
func (o *OpenAIBackend) Name() string { return "openai" }

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

// chatMessage is a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response body from the chat completions endpoint.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// chatChoice is one completion in the response.
type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Draft sends the prompt as a single user message and returns the first
// choice's content. Rate-limit responses go through the shared 429 retry
// helper.
func (o *OpenAIBackend) Draft(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := o.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := httputil.DoWithRetry(ctx, o.client, req, o.maxRetries)
	if err != nil {
		return "", fmt.Errorf("calling chat completions API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completions API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(cResp.Choices) == 0 {
		return "", fmt.Errorf("chat completions API returned no choices")
	}
	return cResp.Choices[0].Message.Content, nil
}

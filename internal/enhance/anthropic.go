// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/eventparse/internal/httputil"
)

// anthropicBaseURL is the Anthropic API root. Package-level var for test
// substitution.
var anthropicBaseURL = "https://api.anthropic.com"

const (
	defaultAnthropicModel = "claude-3-5-haiku-20241022"
	anthropicVersion      = "2023-06-01"
)

// AnthropicBackend calls the Messages API with a forced tool call.
type AnthropicBackend struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Client    *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools"`
	ToolChoice  anthropicChoice    `json:"tool_choice"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Text  string          `json:"text"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Name identifies the backend in logs and health output.
func (c *AnthropicBackend) Name() string { return "anthropic" }

// Complete sends one prompt and returns the tool input. Answers without a
// call to the expected tool are malformed.
func (c *AnthropicBackend) Complete(ctx context.Context, call Call) (Answer, error) {
	prompt, err := renderPrompt(call)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reqBody := anthropicRequest{
		Model:       c.model(),
		MaxTokens:   c.MaxTokens,
		Temperature: 0,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		Tools: []anthropicTool{{
			Name:        toolName,
			Description: toolDescription,
			InputSchema: call.Schema,
		}},
		ToolChoice: anthropicChoice{Type: "tool", Name: toolName},
	}
	if reqBody.MaxTokens <= 0 {
		reqBody.MaxTokens = 512
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.client(), req, 1)
	if err != nil {
		return nil, fmt.Errorf("calling Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Anthropic API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return nil, fmt.Errorf("%w: decoding Anthropic response: %v", ErrMalformed, err)
	}
	for _, block := range aResp.Content {
		if block.Type != "tool_use" || block.Name != toolName {
			continue
		}
		ans, err := decodeArguments(block.Input)
		if err != nil {
			return nil, fmt.Errorf("%w: tool input: %v", ErrMalformed, err)
		}
		return ans, nil
	}
	return nil, fmt.Errorf("%w: no %s tool call in response (stop_reason %q)", ErrMalformed, toolName, aResp.StopReason)
}

// Ping lists models, which needs a valid key but costs no tokens.
func (c *AnthropicBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/v1/models?limit=1", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("pinging Anthropic API: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Anthropic API returned %d", resp.StatusCode)
	}
	return nil
}

func (c *AnthropicBackend) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (c *AnthropicBackend) model() string {
	if c.Model == "" {
		return defaultAnthropicModel
	}
	return c.Model
}

func (c *AnthropicBackend) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return anthropicBaseURL
}

func (c *AnthropicBackend) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

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

	"github.com/kaptinlin/jsonrepair"

	"github.com/pdiddy/eventparse/internal/httputil"
)

// openAIBaseURL is the OpenAI API root. Package-level var for test
// substitution; OpenAI-compatible servers are reached through BaseURL.
var openAIBaseURL = "https://api.openai.com/v1"

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend calls a chat-completions endpoint with a forced function
// call.
type OpenAIBackend struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Client    *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools"`
	ToolChoice  openAIChoice    `json:"tool_choice"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIChoice struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Name identifies the backend in logs and health output.
func (c *OpenAIBackend) Name() string { return "openai" }

// Complete sends one prompt and returns the function arguments, repaired
// when the model emitted slightly broken JSON.
func (c *OpenAIBackend) Complete(ctx context.Context, call Call) (Answer, error) {
	prompt, err := renderPrompt(call)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reqBody := openAIRequest{
		Model:       c.model(),
		Temperature: 0,
		MaxTokens:   c.MaxTokens,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Tools: []openAITool{{
			Type: "function",
			Function: openAIFunction{
				Name:        toolName,
				Description: toolDescription,
				Parameters:  call.Schema,
			},
		}},
		ToolChoice: openAIChoice{Type: "function", Function: openAIFunction{Name: toolName}},
	}
	if reqBody.MaxTokens <= 0 {
		reqBody.MaxTokens = 512
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.client(), req, 1)
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var oResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("%w: decoding OpenAI response: %v", ErrMalformed, err)
	}
	for _, choice := range oResp.Choices {
		for _, tc := range choice.Message.ToolCalls {
			if tc.Function.Name != toolName {
				continue
			}
			args := tc.Function.Arguments
			ans, err := decodeArguments([]byte(args))
			if err != nil {
				fixed, repairErr := jsonrepair.JSONRepair(args)
				if repairErr != nil {
					return nil, fmt.Errorf("%w: function arguments: %v", ErrMalformed, err)
				}
				if ans, err = decodeArguments([]byte(fixed)); err != nil {
					return nil, fmt.Errorf("%w: repaired function arguments: %v", ErrMalformed, err)
				}
			}
			return ans, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s function call in response", ErrMalformed, toolName)
}

// Ping lists models, which needs a valid key but costs no tokens.
func (c *OpenAIBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/models", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("pinging OpenAI API: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenAI API returned %d", resp.StatusCode)
	}
	return nil
}

func (c *OpenAIBackend) setHeaders(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func (c *OpenAIBackend) model() string {
	if c.Model == "" {
		return defaultOpenAIModel
	}
	return c.Model
}

func (c *OpenAIBackend) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return openAIBaseURL
}

func (c *OpenAIBackend) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

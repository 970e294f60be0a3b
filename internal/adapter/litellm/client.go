// Package litellm implements the LLM provider port over an OpenAI-compatible
// chat completions API, served either by a LiteLLM proxy or by OpenAI directly.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/resilience"
)

const (
	defaultProxyURL  = "http://localhost:4000"
	defaultOpenAIURL = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
)

func init() {
	llm.Register("litellm", func(opts llm.Options) (llm.Provider, error) {
		if opts.BaseURL == "" {
			opts.BaseURL = defaultProxyURL
		}
		return NewClient("litellm", opts), nil
	})
	llm.Register("openai", func(opts llm.Options) (llm.Provider, error) {
		if opts.APIKey == "" {
			return nil, errors.New("openai: api key is required (set OPENAI_API_KEY)")
		}
		if opts.BaseURL == "" {
			opts.BaseURL = defaultOpenAIURL
		}
		return NewClient("openai", opts), nil
	})
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	name       string
	baseURL    string
	masterKey  string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ llm.Provider = (*Client)(nil)

// NewClient creates a chat completions client reporting itself as name.
func NewClient(name string, opts llm.Options) *Client {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		masterKey:  opts.APIKey,
		model:      model,
		httpClient: opts.Client(),
		breaker:    opts.Breaker,
	}
}

// Name returns the registered provider name.
func (c *Client) Name() string { return c.name }

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a system + user chat completion.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body := chatCompletionRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ChatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, ChatMessage{Role: "user", Content: req.User})
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %w", domain.ErrProvider, c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", domain.ErrProvider, c.name)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: %s content filter triggered", domain.ErrContentPolicy, c.name)
	}
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("%w: %s returned empty content (finish_reason=%s)", domain.ErrProvider, c.name, choice.FinishReason)
	}

	return &llm.Response{
		Text:       choice.Message.Content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: choice.FinishReason,
	}, nil
}

// Health checks if the LiteLLM proxy is healthy.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, "/health/liveliness", nil)
	return err == nil, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.TransportError(ctx, c.name, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.TransportError(ctx, c.name, err)
		}

		if resp.StatusCode >= 400 {
			return llm.StatusError(c.name, resp.StatusCode, string(data),
				resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
		}

		result = data
		return nil
	}

	if err := c.breaker.Execute(call); err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstream, c.name, err)
		}
		return nil, err
	}
	return result, nil
}

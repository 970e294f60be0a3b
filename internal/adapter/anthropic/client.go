// Package anthropic implements the LLM provider port over the Anthropic Messages API.
package anthropic

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
	providerName   = "anthropic"
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-haiku-4-5-20251001"
	apiVersion     = "2023-06-01"
)

func init() {
	llm.Register(providerName, func(opts llm.Options) (llm.Provider, error) {
		return New(opts)
	})
}

// Client is an llm.Provider backed by the Anthropic Messages API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ llm.Provider = (*Client)(nil)

// New creates an Anthropic client. An API key is required.
func New(opts llm.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic: api key is required (set ANTHROPIC_API_KEY)")
	}
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: opts.Client(),
		breaker:    opts.Breaker,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	return c, nil
}

// Name returns "anthropic".
func (c *Client) Name() string { return providerName }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a single-turn message and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body := messagesRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.User}},
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	data, err := c.doRequest(ctx, "/v1/messages", payload)
	if err != nil {
		return nil, err
	}

	var resp messagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: anthropic: decode response: %w", domain.ErrProvider, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if resp.StopReason == "refusal" {
		return nil, fmt.Errorf("%w: anthropic refused the request", domain.ErrContentPolicy)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: anthropic returned no text (stop_reason=%s)", domain.ErrProvider, resp.StopReason)
	}

	return &llm.Response{
		Text:       text.String(),
		Model:      resp.Model,
		TokensIn:   resp.Usage.InputTokens,
		TokensOut:  resp.Usage.OutputTokens,
		StopReason: resp.StopReason,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.TransportError(ctx, providerName, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.TransportError(ctx, providerName, err)
		}

		if resp.StatusCode >= 400 {
			return llm.StatusError(providerName, resp.StatusCode, errorMessage(data),
				resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
		}

		result = data
		return nil
	}

	if err := c.breaker.Execute(call); err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: anthropic: %w", domain.ErrUpstream, err)
		}
		return nil, err
	}
	return result, nil
}

// errorMessage extracts error.message from an Anthropic error body, falling
// back to the raw body.
func errorMessage(data []byte) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Type + ": " + e.Error.Message
	}
	return string(data)
}

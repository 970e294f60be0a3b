// Package gemini implements the LLM provider port over the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
	"github.com/BaoNguyen09/repo-explainer/internal/port/llm"
	"github.com/BaoNguyen09/repo-explainer/internal/resilience"
)

const (
	providerName   = "gemini"
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"
)

func init() {
	llm.Register(providerName, func(opts llm.Options) (llm.Provider, error) {
		return New(opts)
	})
}

// blockedFinishReasons are candidate finish reasons that mean the model
// declined to answer.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

// Client is an llm.Provider backed by the Gemini API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ llm.Provider = (*Client)(nil)

// New creates a Gemini client. An API key is required.
func New(opts llm.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is required (set GEMINI_API_KEY)")
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

// Name returns "gemini".
func (c *Client) Name() string { return providerName }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Complete calls generateContent and returns the first candidate's text.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.User}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: req.MaxTokens},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.GenerationConfig.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	path := "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"
	data, err := c.doRequest(ctx, path, payload)
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: gemini: decode response: %w", domain.ErrProvider, err)
	}
	if r := resp.PromptFeedback.BlockReason; r != "" {
		return nil, fmt.Errorf("%w: gemini blocked the prompt (%s)", domain.ErrContentPolicy, r)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", domain.ErrProvider)
	}

	cand := resp.Candidates[0]
	if blockedFinishReasons[cand.FinishReason] {
		return nil, fmt.Errorf("%w: gemini stopped generation (%s)", domain.ErrContentPolicy, cand.FinishReason)
	}
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: gemini returned no text (finish_reason=%s)", domain.ErrProvider, cand.FinishReason)
	}

	return &llm.Response{
		Text:       text.String(),
		Model:      resp.ModelVersion,
		TokensIn:   resp.UsageMetadata.PromptTokenCount,
		TokensOut:  resp.UsageMetadata.CandidatesTokenCount,
		StopReason: cand.FinishReason,
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
		req.Header.Set("x-goog-api-key", c.apiKey)

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
			return nil, fmt.Errorf("%w: gemini: %w", domain.ErrUpstream, err)
		}
		return nil, err
	}
	return result, nil
}

func errorMessage(data []byte) string {
	var e struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Status + ": " + e.Error.Message
	}
	return string(data)
}

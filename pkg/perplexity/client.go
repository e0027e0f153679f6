// Package perplexity talks to the Perplexity chat API. The geocoder uses
// it as a last automated layer, asking a search-grounded model where a
// street is.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/resilience"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.perplexity.ai"
	// DefaultModel is the cheapest search-grounded model.
	DefaultModel = "sonar"

	completionsPath = "/chat/completions"
	maxErrorBody    = 512
)

// Config holds the connection settings. Zero fields fall back to the
// package defaults.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client sends one completion request per call. It does not retry.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is the body of a completion call.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Ask builds a single-turn request with the given sampling limits.
func Ask(prompt string, temperature float64, maxTokens int) Request {
	return Request{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the decoded completion. Only the fields the geocoder reads
// are kept.
type Response struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one candidate answer.
type Choice struct {
	Message Message `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Text returns the first answer, or "" for an empty or nil response.
func (r *Response) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type client struct {
	cfg Config
	hc  *http.Client
}

// New returns a Client. hc may be nil, in which case a client with
// cfg.Timeout (30s when unset) is used.
func New(cfg Config, hc *http.Client) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{cfg: cfg, hc: hc}
}

func (c *client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "perplexity: decode response")
	}
	return &out, nil
}

func (c *client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return httpReq, nil
}

// statusError reads at most maxErrorBody bytes of a failed response.
// Throttling and 5xx come back as *resilience.TransientError.
func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := eris.Errorf("perplexity: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(err, resp.StatusCode)
	}
	return err
}

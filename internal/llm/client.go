// Package llm talks to chat-completion endpoints for the live translate
// loop and for replaying exported request records against a real endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Default endpoints. The OpenAI-compatible default targets the DashScope
// gateway serving the qwen model family.
const (
	DefaultOpenAIBase = "https://dashscope.aliyuncs.com/compatible-mode"
	DefaultOllamaBase = "http://localhost:11434"
)

// Endpoint paths per provider.
const (
	chatCompletionsPath = "/v1/chat/completions"
	ollamaChatPath      = "/api/chat"
)

// Client defaults.
const (
	DefaultTimeout = 60 * time.Second
	DefaultRetries = 2

	retryWait = 2 * time.Second
)

// Sentinel errors.
var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrEmptyResponse       = errors.New("empty model response")
	ErrBadRequestRecord    = errors.New("request record has no body")
)

// Config holds the connection settings for a chat endpoint.
type Config struct {
	// Provider is "openai" or "ollama".
	Provider string

	// BaseURL overrides the provider's default endpoint base.
	BaseURL string

	// APIKey is sent as a bearer token on openai-style requests.
	APIKey string

	// Model is the model name for Chat calls. For Relay it is an override:
	// empty keeps the model embedded in each request record.
	Model string

	// Timeout bounds one request; zero means DefaultTimeout.
	Timeout time.Duration

	// Retries is the transport-level retry count; negative disables the
	// default.
	Retries int
}

// Client is a chat-completion client over HTTP.
type Client struct {
	cfg  Config
	http *resty.Client
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	} else if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(retryWait)

	return &Client{cfg: cfg, http: httpClient}, nil
}

// Chat sends one system+user exchange and returns the scrubbed answer text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	messages := []map[string]string{
		{"role": "system", "content": system},
		{"role": "user", "content": user},
	}

	switch c.cfg.Provider {
	case ProviderOllama:
		body := map[string]any{
			"model":    c.cfg.Model,
			"messages": messages,
			"stream":   false,
		}

		raw, err := c.post(ctx, c.baseURL()+ollamaChatPath, body)
		if err != nil {
			return "", err
		}

		return c.answer(raw, "message.content")
	default:
		body := map[string]any{
			"model":    c.cfg.Model,
			"messages": messages,
		}

		raw, err := c.post(ctx, c.baseURL()+chatCompletionsPath, body)
		if err != nil {
			return "", err
		}

		return c.answer(raw, "choices.0.message.content")
	}
}

// Relay executes one exported request record against the live endpoint. The
// record's body is sent as-is except for the model override (when the client
// was configured with one) and, for ollama, a stream:false patch. Unknown
// body fields are preserved.
func (c *Client) Relay(ctx context.Context, record []byte) (string, error) {
	body := gjson.GetBytes(record, "body")
	if !body.IsObject() {
		return "", ErrBadRequestRecord
	}

	payload := []byte(body.Raw)

	if c.cfg.Model != "" {
		patched, modelErr := sjson.SetBytes(payload, "model", c.cfg.Model)
		if modelErr != nil {
			return "", fmt.Errorf("override model: %w", modelErr)
		}

		payload = patched
	}

	url := c.baseURL() + chatCompletionsPath
	contentPath := "choices.0.message.content"

	if c.cfg.Provider == ProviderOllama {
		patched, streamErr := sjson.SetBytes(payload, "stream", false)
		if streamErr != nil {
			return "", fmt.Errorf("disable streaming: %w", streamErr)
		}

		payload = patched
		url = c.baseURL() + ollamaChatPath
		contentPath = "message.content"
	}

	raw, err := c.post(ctx, url, payload)
	if err != nil {
		return "", err
	}

	return c.answer(raw, contentPath)
}

// baseURL returns the configured base with the provider default applied.
func (c *Client) baseURL() string {
	base := c.cfg.BaseURL
	if base == "" {
		base = DefaultOpenAIBase
		if c.cfg.Provider == ProviderOllama {
			base = DefaultOllamaBase
		}
	}

	return strings.TrimRight(base, "/")
}

// post sends one JSON request and returns the raw response body.
func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)

	if c.cfg.APIKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := req.Post(url)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("chat request: %s; body: %s", resp.Status(), resp.String())
	}

	return resp.Body(), nil
}

// answer extracts and scrubs the answer text at the given gjson path.
func (c *Client) answer(raw []byte, contentPath string) (string, error) {
	content := gjson.GetBytes(raw, contentPath)
	if !content.Exists() || content.Type == gjson.Null {
		return "", fmt.Errorf("%w: no content at %s", ErrEmptyResponse, contentPath)
	}

	return Scrub(content.String()), nil
}

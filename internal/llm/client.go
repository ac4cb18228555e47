package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	anthropicVersion   = "2023-06-01"
)

// Adapter sends a single-prompt completion to one provider.
type Adapter interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// NewAdapter returns the adapter for provider. It fails with
// apperr.ErrUnsupportedProvider for unknown names and apperr.ErrConfig for
// configs that cannot make requests.
func NewAdapter(provider Provider, cfg ProviderConfig, httpClient *http.Client) (Adapter, error) {
	p, ok := ParseProvider(string(provider))
	if !ok {
		return nil, apperr.Newf(apperr.ErrUnsupportedProvider, "unsupported provider %q", provider)
	}
	cfg = cfg.WithDefaults(p)
	if err := cfg.Validate(); err != nil {
		return nil, apperr.WrapError(err, apperr.ErrConfig, fmt.Sprintf("invalid %s configuration", p))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	base := client{provider: p, config: cfg, httpClient: httpClient}
	switch p {
	case ProviderAnthropic:
		return &AnthropicClient{client: base}, nil
	default:
		return &OpenAIClient{client: base}, nil
	}
}

type client struct {
	provider   Provider
	config     ProviderConfig
	httpClient *http.Client
}

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	client
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + strings.TrimSpace(c.config.APIKey),
		"Content-Type":  "application/json",
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	request := ChatRequest{
		Model:       c.config.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	var resp ChatResponse
	if err := c.post(ctx, "/chat/completions", c.headers(), request, &resp, func() *Error { return resp.Error }); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &Completion{
		Text:        strings.TrimSpace(resp.Choices[0].Message.Content),
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// AnthropicClient talks to the Anthropic messages endpoint.
type AnthropicClient struct {
	client
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         strings.TrimSpace(c.config.APIKey),
		"anthropic-version": anthropicVersion,
		"Content-Type":      "application/json",
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	request := MessagesRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages:    []Message{{Role: "user", Content: prompt}},
	}

	var resp MessagesResponse
	if err := c.post(ctx, "/v1/messages", c.headers(), request, &resp, func() *Error { return resp.Error }); err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("no content in response")
	}
	return &Completion{
		Text:        strings.TrimSpace(resp.Content[0].Text),
		TotalTokens: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// post sends payload as JSON and decodes a 2xx body into out. For other
// statuses it returns an *APIError built from the body's error object.
func (c *client) post(ctx context.Context, path string, headers map[string]string, payload, out any, apiErr func() *Error) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return fmt.Errorf("request timed out: %w", err)
		}
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	decodeErr := json.Unmarshal(body, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &APIError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		if decodeErr == nil {
			if body := apiErr(); body != nil && body.Message != "" {
				e.Message = body.Message
				e.Type = body.Type
			}
		}
		return e
	}

	if decodeErr != nil {
		return fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	return nil
}

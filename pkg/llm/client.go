// Package llm talks to a single text-generation provider (OpenAI or Anthropic)
// and parses its JSON answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Completer returns the model's text answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configures a Client.
type Options struct {
	Provider string // "openai" or "anthropic"
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// Client is a minimal chat-completion client.
type Client struct {
	client   *http.Client
	provider string
	model    string
	apiKey   string
	baseURL  string
}

// New creates a client, choosing a default model per provider.
func New(opts Options) *Client {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	if opts.Model == "" {
		switch opts.Provider {
		case "anthropic":
			opts.Model = "claude-sonnet-4-20250514"
		default:
			opts.Model = "gpt-4o-mini"
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		client:   &http.Client{Timeout: opts.Timeout},
		provider: opts.Provider,
		model:    opts.Model,
		apiKey:   opts.APIKey,
		baseURL:  opts.BaseURL,
	}
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the model used for completions.
func (c *Client) Model() string { return c.model }

// Complete sends one user message and returns the first text answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llm: api key not configured")
	}
	switch c.provider {
	case "anthropic":
		return c.callAnthropic(ctx, prompt)
	default:
		return c.callOpenAI(ctx, prompt)
	}
}

func (c *Client) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "openai", baseURL+"/v1/chat/completions", headers, payload, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 4096,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.post(ctx, "anthropic", baseURL+"/v1/messages", headers, payload, &result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", errors.New("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func (c *Client) post(ctx context.Context, name, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &StatusError{Provider: name, StatusCode: resp.StatusCode, Body: errResp}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

// StatusError is returned when the provider answers with a non-200 status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       map[string]any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %v", e.Provider, e.StatusCode, e.Body)
}

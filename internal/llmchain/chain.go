// Package llmchain implements the LLM Fallback Chain (component D): a
// primary chat-completion provider with a rate limiter and a timeout-only
// fallback provider, tried in order on any failure.
package llmchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentboard/agentboard/internal/errors"
)

const (
	temperature      = 0.7
	maxOutputTokens  = 8192
	primaryTimeout   = 120 * time.Second
	fallbackTimeout  = 180 * time.Second
)

// Result is a completed chat response plus accounting metadata.
type Result struct {
	Text       string
	ProviderID string
	Usage      UsageMetadata
}

// UsageMetadata mirrors the accounting fields most chat completion APIs
// report back.
type UsageMetadata struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Provider is a single chat-completion backend.
type Provider struct {
	ID         string
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// Chain holds a primary and fallback Provider.
type Chain struct {
	Primary  *Provider
	Fallback *Provider
	Logger   *slog.Logger
}

// New constructs a Chain. Primary may be nil to skip straight to fallback.
func New(primary, fallback *Provider, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback != nil && fallback.Timeout == 0 {
		fallback.Timeout = fallbackTimeout
	}
	return &Chain{Primary: primary, Fallback: fallback, Logger: logger}
}

// Complete tries Primary (if configured), then Fallback, returning a
// *errors.Error with CodeProviderExhausted if both fail.
func (c *Chain) Complete(ctx context.Context, prompt string) (Result, error) {
	var tried []string
	if c.Primary != nil {
		tried = append(tried, c.Primary.ID)
		res, err := c.Primary.complete(ctx, prompt)
		if err == nil {
			return res, nil
		}
		c.Logger.Warn("llm chain: primary failed, trying fallback", "provider", c.Primary.ID, "error", err)
	}

	if c.Fallback != nil {
		tried = append(tried, c.Fallback.ID)
		res, err := c.Fallback.complete(ctx, prompt)
		if err == nil {
			return res, nil
		}
		c.Logger.Warn("llm chain: fallback failed", "provider", c.Fallback.ID, "error", err)
	}

	return Result{}, errors.ErrProviderExhausted(tried)
}

type chatRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type chatResponse struct {
	Text  string `json:"text"`
	Usage struct {
		PromptTokens     int `json:"promptTokens"`
		CompletionTokens int `json:"completionTokens"`
	} `json:"usage"`
}

func (p *Provider) complete(ctx context.Context, prompt string) (Result, error) {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = primaryTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       p.Model,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, errors.ErrProviderUnavailable(p.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, errors.ErrProviderRateLimited(p.ID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{}, errors.ErrProviderUnavailable(p.ID, fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, errors.ErrProviderUnavailable(p.ID, fmt.Errorf("decode response: %w", err))
	}

	return Result{
		Text:       parsed.Text,
		ProviderID: p.ID,
		Usage:      UsageMetadata{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens},
	}, nil
}

// Package ollama is a client for an Ollama-compatible text completion backend.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/resilience"
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// RequestsPerSecond throttles Generate; zero disables the limit.
	RequestsPerSecond float64
}

// Client talks to /api/generate and /api/tags.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	exec        *resilience.Executor
	limiter     *rate.Limiter
	log         *slog.Logger
}

// New creates a Client. A nil executor runs calls once without a breaker.
func New(cfg Config, exec *resilience.Executor, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}, log)
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		exec:        exec,
		log:         log,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.model }

// Available checks that the backend answers and serves the model.
func (c *Client) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &tags, "tags"); err != nil {
		return fmt.Errorf("ollama: cannot reach %s: %v: %w", c.baseURL, err, apperr.ErrBackendUnavailable)
	}
	for _, m := range tags.Models {
		if strings.Contains(m.Name, c.model) {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %q not served by %s, pull it first: %w", c.model, c.baseURL, apperr.ErrBackendUnavailable)
}

// Generate returns the completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.temperature,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	err := c.exec.Execute(ctx, "ollama.generate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, "generate")
	}, classifyOllamaError)
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return "", fmt.Errorf("ollama: generate: %v: %w", err, apperr.ErrBackendUnavailable)
		}
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

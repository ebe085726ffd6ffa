// Package provider implements the OpenAI-compatible client used for
// embeddings and summary completions. Rate limiting and timeouts live
// here; callers attempt each operation once and degrade on failure.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/docfold/memoria/pkg/errors"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	EmbeddingModel    string
	CompletionModel   string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to an OpenAI-compatible API.
type Client struct {
	baseURL         string
	apiKey          string
	embeddingModel  string
	completionModel string
	httpClient      *http.Client
	limiter         *rate.Limiter
}

// New builds a client. Zero options fall back to the OpenAI defaults; a
// non-positive rate disables client-side limiting.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "text-embedding-3-small"
	}
	if opts.CompletionModel == "" {
		opts.CompletionModel = "gpt-4o-mini"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if opts.RequestsPerSecond >= 1 {
			burst = int(opts.RequestsPerSecond)
		}
	}

	return &Client{
		baseURL:         opts.BaseURL,
		apiKey:          opts.APIKey,
		embeddingModel:  opts.EmbeddingModel,
		completionModel: opts.CompletionModel,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		limiter:         rate.NewLimiter(limit, burst),
	}
}

// CreateEmbedding returns the embedding vector for text.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderTimeout, "rate limiter wait aborted")
	}

	reqBody := map[string]any{
		"model": c.embeddingModel,
		"input": text,
	}

	var result struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", reqBody, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeProviderUnavailable, "no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

// Complete runs a single-turn chat completion and returns the assistant
// message content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeProviderTimeout, "rate limiter wait aborted")
	}

	reqBody := map[string]any{
		"model": c.completionModel,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", reqBody, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeProviderUnavailable, "no completion returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody any, out any) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshaling request")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeProviderTimeout, "request aborted").WithRetryable(true)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeProviderUnavailable, "request failed").WithRetryable(true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrCodeProviderRateLimit, "provider rate limit").
			WithContext("status", resp.StatusCode).
			WithRetryable(true)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperrors.New(apperrors.ErrCodeProviderUnavailable, "provider returned error").
			WithContext("status", resp.StatusCode).
			WithContext("body", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeProviderUnavailable, "decoding response")
	}
	return nil
}

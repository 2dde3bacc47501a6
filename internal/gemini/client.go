// Package gemini is a thin HTTP client for the generateContent text
// completion surface. Attempt budgets and validation loops live with the
// callers; this package only performs single requests and classifies rate
// limiting so callers can back off correctly.
package gemini

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

	"go.uber.org/zap"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Completer is the text-completion dependency pipeline stages accept.
type Completer interface {
	Generate(ctx context.Context, prompt string, opts GenOptions) (string, error)
}

// GenOptions tune one generation request.
type GenOptions struct {
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
}

// Client calls a Gemini-compatible endpoint over HTTPS.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// NewClient builds a client for model. baseURL may be empty for the public
// endpoint.
func NewClient(baseURL, apiKey, model string, log *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		log:        log,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// RateLimitError marks an HTTP 429 / RESOURCE_EXHAUSTED response.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Generate runs one completion request and returns the concatenated text of
// the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenOptions) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(respBody), "RESOURCE_EXHAUSTED") {
			return "", &RateLimitError{Message: string(respBody)}
		}
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		if parsed.Error.Code == 429 || parsed.Error.Status == "RESOURCE_EXHAUSTED" {
			return "", &RateLimitError{Message: parsed.Error.Message}
		}
		return "", fmt.Errorf("model error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("response contained no candidates")
	}

	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// SleepForRetry waits before the next attempt: a fixed 30 s on rate-limit
// signals, 300 ms scaled by attempt otherwise. Returns early on context
// cancellation.
func SleepForRetry(ctx context.Context, attempt int, err error) error {
	delay := time.Duration(attempt) * 300 * time.Millisecond
	if IsRateLimited(err) {
		delay = 30 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

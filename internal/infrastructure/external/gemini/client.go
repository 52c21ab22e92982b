// Package gemini implements the Google Generative Language API client.
// The hub uses it for essay grading and for the student chat assistants.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Gemini client.
type ClientConfig struct {
	// BaseURL is the Generative Language API base URL.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Models is the ordered fallback chain. The first model that answers
	// successfully wins; the rest are never tried for that request.
	Models []string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		APIKey:  apiKey,
		Models: []string{
			"gemini-2.0-flash",
			"gemini-2.5-flash",
			"gemini-flash-latest",
			"gemini-2.0-flash-lite",
		},
		Timeout: 60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNoModels is returned when the fallback chain is empty.
	ErrNoModels = errors.New("gemini: no models configured")

	// ErrAllModelsFailed is returned when every model in the chain failed.
	ErrAllModelsFailed = errors.New("gemini: all models failed")

	// ErrEmptyResponse is returned when a model answers with no candidates.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// APIError represents a Generative Language API error response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error (status %d): %s", e.StatusCode, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// API TYPES
// ══════════════════════════════════════════════════════════════════════════════

type generateRequest struct {
	Contents          []contentDTO      `json:"contents"`
	SystemInstruction *contentDTO       `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type contentDTO struct {
	Role  string    `json:"role,omitempty"`
	Parts []partDTO `json:"parts"`
}

type partDTO struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []partDTO `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Generative Language API client with model fallback.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Gemini client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// GenerateParams describes a single generation request.
type GenerateParams struct {
	// SystemPrompt sets the assistant's behavior, optional.
	SystemPrompt string

	// Prompt is the user-visible request text.
	Prompt string

	// Temperature overrides the model default when non-nil.
	Temperature *float64

	// MaxOutputTokens caps the answer length, 0 means model default.
	MaxOutputTokens int
}

// Generate walks the model fallback chain and returns the first
// successful answer. When every model fails the error wraps
// ErrAllModelsFailed together with the first model's error, since the
// first failure is the one that broke the preferred model.
func (c *Client) Generate(ctx context.Context, params GenerateParams) (string, error) {
	if len(c.config.Models) == 0 {
		return "", ErrNoModels
	}

	var firstErr error
	for _, model := range c.config.Models {
		text, err := c.generateWithModel(ctx, model, params)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}

		c.logger.Warn("gemini model failed, trying next",
			"model", model,
			"error", err,
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	return "", fmt.Errorf("%w: %v", ErrAllModelsFailed, firstErr)
}

// GenerateWithModel sends the request to one specific model without
// fallback. Used for the exam assistant where the model is pinned.
func (c *Client) GenerateWithModel(ctx context.Context, model string, params GenerateParams) (string, error) {
	return c.generateWithModel(ctx, model, params)
}

func (c *Client) generateWithModel(ctx context.Context, model string, params GenerateParams) (string, error) {
	reqBody := generateRequest{
		Contents: []contentDTO{
			{Role: "user", Parts: []partDTO{{Text: params.Prompt}}},
		},
	}
	if params.SystemPrompt != "" {
		reqBody.SystemInstruction = &contentDTO{Parts: []partDTO{{Text: params.SystemPrompt}}}
	}
	if params.Temperature != nil || params.MaxOutputTokens > 0 {
		reqBody.GenerationConfig = &generationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxOutputTokens,
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.config.BaseURL, model, c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if parsed.Error != nil {
			apiErr.Message = parsed.Error.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return "", apiErr
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON EXTRACTION
// ══════════════════════════════════════════════════════════════════════════════

// ExtractJSON pulls a JSON object out of a model answer. Models often
// wrap the object in markdown fences or prepend prose, so the text is
// sliced from the first '{' to the last '}' before unmarshalling.
func ExtractJSON(raw string, dest interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in model answer")
	}

	return json.Unmarshal([]byte(cleaned[start:end+1]), dest)
}

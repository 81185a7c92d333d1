package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nutricoach/server/internal/shared/config"
)

// Kind identifies the type of inference requested.
type Kind string

const (
	KindMealAnalysis   Kind = "meal_analysis"
	KindHealthAnalysis Kind = "health_analysis"
	KindWeeklySummary  Kind = "weekly_summary"
	KindRecommendation Kind = "recommendation"
)

// Inference failures split into transient (worth retrying/resuming) and
// structural (bad input, never going to succeed).
var (
	ErrUnavailable  = errors.New("inference service unavailable")
	ErrInvalidInput = errors.New("inference input rejected")
)

// Request is the wire contract with the inference service.
type Request struct {
	Kind  Kind           `json:"kind"`
	Input map[string]any `json:"input"`
}

// Usage reports token consumption for one inference call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the inference service's reply.
type Response struct {
	Output json.RawMessage `json:"output"`
	Model  string          `json:"model,omitempty"`
	Usage  *Usage          `json:"usage,omitempty"`
}

// Client calls the external inference service.
type Client interface {
	Infer(ctx context.Context, req *Request) (*Response, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a new inference client.
func NewHTTPClient(cfg *config.AIConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Infer sends one inference request.
func (c *HTTPClient) Infer(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/infer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		msg := readErrorMessage(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		msg := readErrorMessage(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	default:
		return nil, fmt.Errorf("inference request failed: status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// IsRecoverable reports whether a failed call is worth retrying later.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return string(data)
}

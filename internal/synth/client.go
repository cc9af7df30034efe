// Package synth talks to the remote speech-synthesis service.
package synth

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

	"golang.org/x/time/rate"
)

// API endpoints and headers.
const (
	apiSpeech = "/v1/audio/speech"

	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
)

// Defaults for the HTTP client.
const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "tts-1"
	DefaultVoice   = "alloy"
	DefaultFormat  = "mp3"
	DefaultTimeout = 120 * time.Second
)

// KnownVoices lists the voices the default provider ships with.
var KnownVoices = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrMissingCredential is returned when no API credential was supplied.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrEmptyAudio is returned when the service answered with no audio.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Client synthesizes speech. Implementations must not retry on their own.
type Client interface {
	Synthesize(ctx context.Context, text, voice, credential string) ([]byte, error)
}

// ProviderError carries the service's own error text.
type ProviderError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "synthesis service returned %d", e.StatusCode)
	if e.Type != "" {
		fmt.Fprintf(&b, " (%s)", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Config configures an HTTPClient.
type Config struct {
	BaseURL           string
	Model             string
	Format            string
	Timeout           time.Duration
	RequestsPerMinute int // 0 disables pacing
}

// HTTPClient calls an OpenAI-compatible speech endpoint.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	format     string

	// Pacing keeps a long batch under the provider's rate limits.
	limiter *rate.Limiter
}

// speechRequest is the JSON payload for the speech endpoint.
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// errorResponse is the provider's structured error body.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// NewHTTPClient creates a client, applying defaults for zero fields.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		format:     cfg.Format,
		limiter:    limiter,
	}
}

// Synthesize sends one speech request and returns the raw audio bytes.
func (c *HTTPClient) Synthesize(ctx context.Context, text, voice, credential string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if credential == "" {
		return nil, ErrMissingCredential
	}
	if voice == "" {
		voice = DefaultVoice
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	body, err := json.Marshal(speechRequest{
		Model:          c.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: c.format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiSpeech, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAuthorization, "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	return audio, nil
}

// parseErrorResponse decodes the provider's JSON error, falling back to
// the raw body so no diagnostic text is lost.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	perr := &ProviderError{StatusCode: resp.StatusCode}

	var decoded errorResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error.Message != "" {
		perr.Message = decoded.Error.Message
		perr.Type = decoded.Error.Type
		if decoded.Error.Code != nil {
			perr.Code = fmt.Sprint(decoded.Error.Code)
		}
		return perr
	}

	perr.Message = strings.TrimSpace(string(raw))
	if perr.Message == "" {
		perr.Message = resp.Status
	}
	return perr
}

// Package llmprovider is the single-call model SDK the registry consumes:
// one generate(model, temperature, prompt) -> string contract (spec §1).
// It is trimmed from the teacher's providers/gemini package down to the
// one call the core needs, reusing its request/response shapes and error
// mapping.
package llmprovider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/aicore/internal/httputil"
	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

const (
	ProviderName      = "gemini"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
)

// Provider is the single-call contract the registry's handler table uses.
type Provider interface {
	Generate(ctx context.Context, model string, temperature float64, prompt string) (string, error)
}

// GeminiProvider calls Google's generateContent API for a single prompt.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// Config configures a GeminiProvider.
type Config struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// New constructs a GeminiProvider. An empty APIKey is accepted and not
// checked here or in Generate: the request is sent with the empty key, and
// the provider's rejection is mapped to a coreerrors type by its HTTP
// status (401/403 become an AuthenticationError).
func New(cfg Config) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// Generate issues one generateContent call and concatenates the first
// candidate's text parts.
func (p *GeminiProvider) Generate(ctx context.Context, model string, temperature float64, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: temperature},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", coreerrors.NewPermanentAIError(ProviderName, model, fmt.Sprintf("marshal request: %v", err))
	}

	base, err := url.Parse(strings.TrimSuffix(p.baseURL, "/"))
	if err != nil {
		return "", coreerrors.NewPermanentAIError(ProviderName, model, fmt.Sprintf("parse base url: %v", err))
	}
	base.Path = base.Path + "/" + p.apiVersion + "/models/" + url.PathEscape(model) + ":generateContent"
	q := base.Query()
	q.Set("key", p.apiKey)
	base.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(body))
	if err != nil {
		return "", coreerrors.NewPermanentAIError(ProviderName, model, fmt.Sprintf("create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", coreerrors.NewTransientAIError(ProviderName, model, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := httputil.ReadLimitedBody(resp.Body, httputil.DefaultMaxResponseBodyBytes)
	if err != nil {
		return "", coreerrors.NewTransientAIError(ProviderName, model, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", mapError(model, resp.StatusCode, respBody)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", coreerrors.NewTransientAIError(ProviderName, model, fmt.Sprintf("unmarshal response: %v", err))
	}
	if len(parsed.Candidates) == 0 {
		return "", coreerrors.NewTransientAIError(ProviderName, model, "model returned no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

func mapError(model string, statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := "unknown provider error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return coreerrors.NewAuthenticationError(ProviderName, model, message)
	case http.StatusTooManyRequests:
		return coreerrors.NewRateLimitError(ProviderName, model, message)
	case http.StatusBadRequest:
		return coreerrors.NewInvalidRequestError(ProviderName, model, message)
	case http.StatusNotFound:
		return coreerrors.NewNotFoundError(ProviderName, model, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return coreerrors.NewTimeoutError(ProviderName, model, message)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return coreerrors.NewServiceUnavailableError(ProviderName, model, message)
	default:
		if statusCode >= 500 {
			return coreerrors.NewTransientAIError(ProviderName, model, message)
		}
		return coreerrors.NewPermanentAIError(ProviderName, model, message)
	}
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/aicore/internal/cachecore"
	"github.com/blueberrycongee/aicore/internal/coretypes"
	"github.com/blueberrycongee/aicore/internal/llmprovider"
	"github.com/blueberrycongee/aicore/internal/observability"
	"github.com/blueberrycongee/aicore/internal/resilience"
	"github.com/blueberrycongee/aicore/internal/textsafety"
	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

const (
	defaultMaxInputChars    = 100000
	defaultMaxQuestionChars = 2000
)

// Limits bounds the schema-validation step (spec §4.4 step 1).
type Limits struct {
	MaxInputChars    int
	MaxQuestionChars int
}

// DefaultLimits returns the spec's default input/question length caps.
func DefaultLimits() Limits {
	return Limits{MaxInputChars: defaultMaxInputChars, MaxQuestionChars: defaultMaxQuestionChars}
}

// TextProcessor is the orchestrator façade: it owns no state of its own
// beyond its collaborators and dispatches every ProcessingRequest through
// the canonical request path (spec §4.4).
type TextProcessor struct {
	cache        *cachecore.Facade
	orchestrator *resilience.Orchestrator
	provider     llmprovider.Provider
	limits       Limits
	logger       *observability.Logger
}

// NewTextProcessor validates the operation table and wires the processor's
// collaborators. Call once from the composition root. logger may be nil, in
// which case a plain unredacted default logger is used.
func NewTextProcessor(cache *cachecore.Facade, orchestrator *resilience.Orchestrator, provider llmprovider.Provider, limits Limits, logger *observability.Logger) (*TextProcessor, error) {
	if err := ValidateTable(); err != nil {
		return nil, err
	}
	for _, h := range operationTable {
		if err := orchestrator.RegisterOperation(h.Operation.Tag(), h.ResilienceStrategy); err != nil {
			return nil, fmt.Errorf("registry: register operation %s: %w", h.Operation, err)
		}
	}
	if limits.MaxInputChars <= 0 {
		limits = DefaultLimits()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LoggerConfig{}, nil)
	}
	return &TextProcessor{cache: cache, orchestrator: orchestrator, provider: provider, limits: limits, logger: logger}, nil
}

// Process runs req through validate -> sanitize -> cache lookup -> resilient
// model call -> response-validate -> parse -> cache store, per spec §4.4.
func (p *TextProcessor) Process(ctx context.Context, req coretypes.ProcessingRequest) (coretypes.ProcessingResponse, error) {
	start := time.Now()

	h, ok := lookup(req.Operation)
	if !ok {
		return coretypes.ProcessingResponse{}, coreerrors.NewValidationError(fmt.Sprintf("unknown operation %q", req.Operation))
	}

	if err := p.validateSchema(req, h); err != nil {
		return coretypes.ProcessingResponse{}, err
	}

	sanitizedText, err := textsafety.SanitizeText(req.Text)
	if err != nil {
		return coretypes.ProcessingResponse{}, err
	}
	var sanitizedQuestion string
	if h.RequiresQuestion {
		sanitizedQuestion, err = textsafety.SanitizeQuestion(req.Question)
		if err != nil {
			return coretypes.ProcessingResponse{}, err
		}
	}
	sanitizedOptions, err := textsafety.SanitizeOptions(req.Options)
	if err != nil {
		return coretypes.ProcessingResponse{}, err
	}

	sanitizedReq := req
	sanitizedReq.Text = sanitizedText
	sanitizedReq.Question = sanitizedQuestion
	sanitizedReq.Options = sanitizedOptions

	key := p.cache.BuildKey(req.Operation, sanitizedText, sanitizedOptions, sanitizedQuestion)

	if cached, ok := p.cache.Get(ctx, key); ok {
		var result coretypes.ResultValue
		if err := json.Unmarshal(cached, &result); err == nil {
			return coretypes.ProcessingResponse{
				Success:   true,
				Operation: req.Operation,
				Result:    result,
				Metadata: coretypes.ResponseMetadata{
					Cached:     true,
					DurationMS: time.Since(start).Milliseconds(),
					Model:      h.Model,
				},
				TraceID: req.TraceID,
			}, nil
		}
		// A corrupt cache entry degrades to a fresh model call rather than
		// failing the request.
	}

	var unrecoverable error
	work := func(ctx context.Context) (coretypes.ResultValue, error) {
		prompt := h.BuildPrompt(sanitizedReq)
		raw, err := p.provider.Generate(ctx, h.Model, h.Temperature, prompt)
		if err != nil {
			if isUnrecoverable(err) {
				// err may embed the provider's raw error body, which can echo
				// back fragments of the prompt or an API key; redact before
				// it reaches the log sink.
				p.logger.RedactedError("registry: provider call failed with a configuration-class error",
					"operation", req.Operation.Tag(), "error", err)
				unrecoverable = err
			}
			return coretypes.ResultValue{}, err
		}
		if err := textsafety.ValidateResponse(raw, h.FallbackKind); err != nil {
			return coretypes.ResultValue{}, coreerrors.NewTransientAIError(llmprovider.ProviderName, h.Model, err.Error())
		}
		return parseResult(raw, h.FallbackKind)
	}

	// An authentication or configuration failure is never masked behind a
	// degraded fallback (spec §4.4 failure semantics): it is surfaced to the
	// caller as-is rather than retried or substituted.
	fallback := func(ctx context.Context) (coretypes.ResultValue, error) {
		if unrecoverable != nil {
			return coretypes.ResultValue{}, unrecoverable
		}
		return typedFallback(h.FallbackKind), nil
	}

	result, degraded, err := resilience.Execute(ctx, p.orchestrator, req.Operation.Tag(), work, fallback)
	if err != nil {
		return coretypes.ProcessingResponse{}, err
	}

	if !degraded {
		if encoded, err := json.Marshal(result); err == nil {
			p.cache.Set(ctx, key, encoded, time.Duration(h.CacheTTLSeconds)*time.Second)
		}
	}

	return coretypes.ProcessingResponse{
		Success:   true,
		Operation: req.Operation,
		Result:    result,
		Metadata: coretypes.ResponseMetadata{
			Cached:     false,
			Degraded:   degraded,
			DurationMS: time.Since(start).Milliseconds(),
			Model:      h.Model,
		},
		TraceID: req.TraceID,
	}, nil
}

// isUnrecoverable reports whether err is a class the resilience layer
// should never paper over with a typed fallback: bad credentials or a
// configuration problem, neither of which a retry or a degraded value can
// fix (spec §4.4 failure semantics summary).
func isUnrecoverable(err error) bool {
	var le *coreerrors.LLMError
	if !errors.As(err, &le) {
		return false
	}
	return le.Type == coreerrors.TypeAuthentication || le.Type == coreerrors.TypeConfiguration
}

func (p *TextProcessor) validateSchema(req coretypes.ProcessingRequest, h handler) error {
	trimmed := strings.TrimSpace(req.Text)
	if trimmed == "" {
		return coreerrors.NewValidationError("text must not be empty")
	}
	if len(req.Text) > p.limits.MaxInputChars {
		return coreerrors.NewValidationError(fmt.Sprintf("text exceeds max_input_chars (%d)", p.limits.MaxInputChars))
	}
	if h.RequiresQuestion {
		if strings.TrimSpace(req.Question) == "" {
			return coreerrors.NewValidationError("question must not be empty for a qa operation")
		}
		if len(req.Question) > p.limits.MaxQuestionChars {
			return coreerrors.NewValidationError(fmt.Sprintf("question exceeds max_question_chars (%d)", p.limits.MaxQuestionChars))
		}
	} else if strings.TrimSpace(req.Question) != "" {
		return coreerrors.NewValidationError(fmt.Sprintf("operation %s does not accept a question", req.Operation))
	}
	return nil
}

// parseResult coerces a validated raw model response into the ResultValue
// shape matching kind (spec §4.4 step 7).
func parseResult(raw string, kind coretypes.FallbackKind) (coretypes.ResultValue, error) {
	trimmed := strings.TrimSpace(raw)
	switch kind {
	case coretypes.FallbackString:
		return coretypes.NewStringResult(trimmed), nil
	case coretypes.FallbackList:
		lines := strings.Split(trimmed, "\n")
		items := make([]string, 0, len(lines))
		for _, line := range lines {
			line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
			if line != "" {
				items = append(items, line)
			}
		}
		return coretypes.NewListResult(items), nil
	case coretypes.FallbackSentiment:
		var sr coretypes.SentimentResult
		if err := json.Unmarshal([]byte(trimmed), &sr); err != nil {
			return coretypes.ResultValue{}, coreerrors.NewValidationError(fmt.Sprintf("sentiment response parse failed: %v", err))
		}
		return coretypes.NewSentimentResultValue(sr), nil
	default:
		return coretypes.ResultValue{}, coreerrors.NewValidationError(fmt.Sprintf("unknown fallback kind %q", kind))
	}
}

// typedFallback builds the degraded-path ResultValue for kind (spec §4.4
// "Typed fallback producers").
func typedFallback(kind coretypes.FallbackKind) coretypes.ResultValue {
	switch kind {
	case coretypes.FallbackList:
		return coretypes.NewListResult(nil)
	case coretypes.FallbackSentiment:
		return coretypes.NewSentimentResultValue(coretypes.SentimentResult{
			Sentiment:   coretypes.Neutral,
			Confidence:  0.0,
			Explanation: "degraded",
		})
	default:
		return coretypes.NewStringResult("Service temporarily unavailable; please retry shortly.")
	}
}

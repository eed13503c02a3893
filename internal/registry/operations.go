// Package registry holds the compile-time operation metadata table and the
// TextProcessor that dispatches a single ProcessingRequest through it
// (spec §4.4). The table is the one place new operations are added; nothing
// else in the package switches on coretypes.Operation directly.
package registry

import (
	"fmt"
	"strings"

	"github.com/blueberrycongee/aicore/internal/coretypes"
)

// promptBuilder renders the operation's prompt from the sanitized request.
type promptBuilder func(req coretypes.ProcessingRequest) string

// handler is one operation's compile-time metadata: the seven fields spec
// §3.1 requires plus the two Go-specific collaborators (prompt builder,
// model/temperature) needed to actually drive a call.
type handler struct {
	Operation          coretypes.Operation
	HandlerID          string
	ResilienceStrategy string
	CacheTTLSeconds    int
	FallbackKind       coretypes.FallbackKind
	RequiresQuestion   bool
	ResponseField      string
	Model              string
	Temperature        float64
	BuildPrompt        promptBuilder
}

const defaultModel = "gemini-1.5-flash"

// operationTable is the compile-time constant spec §3.1 calls for. Every
// coretypes.Operation variant must appear exactly once; validated by
// ValidateTable at startup.
var operationTable = []handler{
	{
		Operation:          coretypes.Summarize,
		HandlerID:          "summarize_v1",
		ResilienceStrategy: "balanced",
		CacheTTLSeconds:    3600,
		FallbackKind:       coretypes.FallbackString,
		RequiresQuestion:   false,
		ResponseField:      "summary",
		Model:              defaultModel,
		Temperature:        0.3,
		BuildPrompt:        buildSummarizePrompt,
	},
	{
		Operation:          coretypes.Sentiment,
		HandlerID:          "sentiment_v1",
		ResilienceStrategy: "aggressive",
		CacheTTLSeconds:    86400,
		FallbackKind:       coretypes.FallbackSentiment,
		RequiresQuestion:   false,
		ResponseField:      "sentiment",
		Model:              defaultModel,
		Temperature:        0.0,
		BuildPrompt:        buildSentimentPrompt,
	},
	{
		Operation:          coretypes.KeyPoints,
		HandlerID:          "key_points_v1",
		ResilienceStrategy: "balanced",
		CacheTTLSeconds:    3600,
		FallbackKind:       coretypes.FallbackList,
		RequiresQuestion:   false,
		ResponseField:      "key_points",
		Model:              defaultModel,
		Temperature:        0.2,
		BuildPrompt:        buildKeyPointsPrompt,
	},
	{
		Operation:          coretypes.Questions,
		HandlerID:          "questions_v1",
		ResilienceStrategy: "balanced",
		CacheTTLSeconds:    3600,
		FallbackKind:       coretypes.FallbackList,
		RequiresQuestion:   false,
		ResponseField:      "questions",
		Model:              defaultModel,
		Temperature:        0.5,
		BuildPrompt:        buildQuestionsPrompt,
	},
	{
		Operation:          coretypes.QA,
		HandlerID:          "qa_v1",
		ResilienceStrategy: "conservative",
		CacheTTLSeconds:    600,
		FallbackKind:       coretypes.FallbackString,
		RequiresQuestion:   true,
		ResponseField:      "answer",
		Model:              defaultModel,
		Temperature:        0.2,
		BuildPrompt:        buildQAPrompt,
	},
}

// ValidateTable checks that every Operation variant appears exactly once
// and every entry has all seven spec-required fields populated. Called
// once from the composition root at process startup.
func ValidateTable() error {
	seen := make(map[coretypes.Operation]bool, len(coretypes.AllOperations))
	for _, h := range operationTable {
		if seen[h.Operation] {
			return fmt.Errorf("registry: operation %s registered more than once", h.Operation)
		}
		seen[h.Operation] = true
		if h.HandlerID == "" {
			return fmt.Errorf("registry: operation %s missing handler_id", h.Operation)
		}
		if h.ResilienceStrategy == "" {
			return fmt.Errorf("registry: operation %s missing resilience_strategy", h.Operation)
		}
		if h.CacheTTLSeconds < 60 || h.CacheTTLSeconds > 604800 {
			return fmt.Errorf("registry: operation %s cache_ttl_seconds out of [60, 604800]", h.Operation)
		}
		if h.FallbackKind == "" {
			return fmt.Errorf("registry: operation %s missing fallback_kind", h.Operation)
		}
		if h.ResponseField == "" {
			return fmt.Errorf("registry: operation %s missing response_field", h.Operation)
		}
		if h.BuildPrompt == nil {
			return fmt.Errorf("registry: operation %s missing prompt builder", h.Operation)
		}
		if h.Operation == coretypes.QA && !h.RequiresQuestion {
			return fmt.Errorf("registry: qa must require a question")
		}
		if h.Operation != coretypes.QA && h.RequiresQuestion {
			return fmt.Errorf("registry: only qa may require a question")
		}
	}
	for _, op := range coretypes.AllOperations {
		if !seen[op] {
			return fmt.Errorf("registry: operation %s is not registered", op)
		}
	}
	return nil
}

// OperationInfo is the public, read-only projection of one operation's
// table entry, for the GET /v1/operations catalog (spec §6.1).
type OperationInfo struct {
	Operation          string `json:"operation"`
	HandlerID          string `json:"handler_id"`
	ResilienceStrategy string `json:"resilience_strategy"`
	CacheTTLSeconds    int    `json:"cache_ttl_seconds"`
	FallbackKind       string `json:"fallback_kind"`
	RequiresQuestion   bool   `json:"requires_question"`
	ResponseField      string `json:"response_field"`
}

// Catalog lists every registered operation's metadata, in table order.
func Catalog() []OperationInfo {
	out := make([]OperationInfo, 0, len(operationTable))
	for _, h := range operationTable {
		out = append(out, OperationInfo{
			Operation:          h.Operation.Tag(),
			HandlerID:          h.HandlerID,
			ResilienceStrategy: h.ResilienceStrategy,
			CacheTTLSeconds:    h.CacheTTLSeconds,
			FallbackKind:       string(h.FallbackKind),
			RequiresQuestion:   h.RequiresQuestion,
			ResponseField:      h.ResponseField,
		})
	}
	return out
}

func lookup(op coretypes.Operation) (handler, bool) {
	for _, h := range operationTable {
		if h.Operation == op {
			return h, true
		}
	}
	return handler{}, false
}

func buildSummarizePrompt(req coretypes.ProcessingRequest) string {
	var b strings.Builder
	b.WriteString("Summarize the following text in 2-3 sentences.\n\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

func buildSentimentPrompt(req coretypes.ProcessingRequest) string {
	var b strings.Builder
	b.WriteString("Classify the sentiment of the following text. Respond with a JSON object ")
	b.WriteString(`with exactly the fields "sentiment" (one of "positive", "negative", "neutral"), `)
	b.WriteString(`"confidence" (a number between 0 and 1), and "explanation" (a short string).`)
	b.WriteString("\n\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

func buildKeyPointsPrompt(req coretypes.ProcessingRequest) string {
	var b strings.Builder
	b.WriteString("Extract the key points of the following text as a list, one per line, with no numbering.\n\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

func buildQuestionsPrompt(req coretypes.ProcessingRequest) string {
	var b strings.Builder
	b.WriteString("Generate clarifying questions a reader might ask about the following text, one per line, with no numbering.\n\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

func buildQAPrompt(req coretypes.ProcessingRequest) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the following text as context. If the answer is not in the text, say so.\n\nText:\n")
	b.WriteString(req.Text)
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(req.Question)
	return b.String()
}

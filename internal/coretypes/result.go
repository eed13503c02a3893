package coretypes

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// SentimentLabel is the classified polarity of a sentiment result.
type SentimentLabel string

const (
	Positive SentimentLabel = "positive"
	Negative SentimentLabel = "negative"
	Neutral  SentimentLabel = "neutral"
)

// SentimentResult is the typed shape produced by the sentiment operation.
type SentimentResult struct {
	Sentiment   SentimentLabel `json:"sentiment"`
	Confidence  float64        `json:"confidence"`
	Explanation string         `json:"explanation"`
}

// ResultValue is a tagged variant matching an operation's FallbackKind.
// Exactly one of Str, List, Sentiment is populated, selected by Kind.
type ResultValue struct {
	Kind      FallbackKind     `json:"-"`
	Str       string           `json:"string,omitempty"`
	List      []string         `json:"list,omitempty"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
}

// NewStringResult builds a String-kind ResultValue.
func NewStringResult(s string) ResultValue {
	return ResultValue{Kind: FallbackString, Str: s}
}

// NewListResult builds a List-kind ResultValue.
func NewListResult(items []string) ResultValue {
	if items == nil {
		items = []string{}
	}
	return ResultValue{Kind: FallbackList, List: items}
}

// NewSentimentResultValue builds a SentimentResult-kind ResultValue.
func NewSentimentResultValue(s SentimentResult) ResultValue {
	return ResultValue{Kind: FallbackSentiment, Sentiment: &s}
}

type wireResultValue struct {
	Kind      string           `json:"kind"`
	Str       string           `json:"string,omitempty"`
	List      []string         `json:"list,omitempty"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
}

// MarshalJSON serializes the variant with an explicit kind discriminator so
// the cache wire format round-trips unambiguously.
func (r ResultValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResultValue{
		Kind:      string(r.Kind),
		Str:       r.Str,
		List:      r.List,
		Sentiment: r.Sentiment,
	})
}

// UnmarshalJSON restores the variant from its wire form.
func (r *ResultValue) UnmarshalJSON(data []byte) error {
	var w wireResultValue
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("coretypes: decode result value: %w", err)
	}
	r.Kind = FallbackKind(w.Kind)
	r.Str = w.Str
	r.List = w.List
	r.Sentiment = w.Sentiment
	return nil
}

// Equal reports value equality, used by the cache round-trip invariant.
func (r ResultValue) Equal(other ResultValue) bool {
	if r.Kind != other.Kind {
		return false
	}
	switch r.Kind {
	case FallbackString:
		return r.Str == other.Str
	case FallbackList:
		if len(r.List) != len(other.List) {
			return false
		}
		for i := range r.List {
			if r.List[i] != other.List[i] {
				return false
			}
		}
		return true
	case FallbackSentiment:
		if r.Sentiment == nil || other.Sentiment == nil {
			return r.Sentiment == other.Sentiment
		}
		return *r.Sentiment == *other.Sentiment
	default:
		return false
	}
}

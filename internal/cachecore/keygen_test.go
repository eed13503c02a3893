package cachecore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blueberrycongee/aicore/internal/coretypes"
)

func TestBuildKeyDeterministicUnderOptionOrder(t *testing.T) {
	a := BuildKey(coretypes.Summarize, "hello", map[string]any{"a": 1, "b": 2}, "", 1000)
	b := BuildKey(coretypes.Summarize, "hello", map[string]any{"b": 2, "a": 1}, "", 1000)
	assert.Equal(t, a, b)

	c := BuildKey(coretypes.Summarize, "hello", map[string]any{"a": 1}, "", 1000)
	assert.NotEqual(t, a, c)
}

func TestBuildKeyNoRawTextAboveThreshold(t *testing.T) {
	longText := ""
	for i := 0; i < 50; i++ {
		longText += "abcdefghij"
	}
	key := BuildKey(coretypes.Summarize, longText, nil, "", 16)
	assert.NotContains(t, string(key), longText)
}

func TestBuildKeyQAIncludesQuestionFingerprint(t *testing.T) {
	withQ := BuildKey(coretypes.QA, "doc text", nil, "what is it?", 1000)
	withoutQ := BuildKey(coretypes.QA, "doc text", nil, "", 1000)
	assert.NotEqual(t, withQ, withoutQ)

	other := BuildKey(coretypes.Summarize, "doc text", nil, "", 1000)
	assert.NotContains(t, string(other), "q_fp")
}

func TestBuildKeyPrefixReserved(t *testing.T) {
	key := BuildKey(coretypes.Sentiment, "x", nil, "", 100)
	assert.True(t, len(key) > len(KeyPrefix))
	assert.Equal(t, KeyPrefix, string(key)[:len(KeyPrefix)])
}

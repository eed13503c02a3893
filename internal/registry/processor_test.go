package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/aicore/internal/cachecore"
	"github.com/blueberrycongee/aicore/internal/coretypes"
	"github.com/blueberrycongee/aicore/internal/resilience"
	coreerrors "github.com/blueberrycongee/aicore/pkg/errors"
)

type stubProvider struct {
	response string
	err      error
	calls    int
}

func (s *stubProvider) Generate(_ context.Context, _ string, _ float64, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestFacade(t *testing.T) *cachecore.Facade {
	t.Helper()
	f, err := cachecore.New(cachecore.Config{MemoryCacheSize: 100, TextHashThreshold: 2000}, nil)
	require.NoError(t, err)
	return f
}

func TestValidateTableCoversEveryOperation(t *testing.T) {
	require.NoError(t, ValidateTable())
}

func TestProcessSummarizeCachesOnSuccess(t *testing.T) {
	provider := &stubProvider{response: "A short summary."}
	processor, err := NewTextProcessor(newTestFacade(t), resilience.NewOrchestrator(nil), provider, DefaultLimits(), nil)
	require.NoError(t, err)

	req := coretypes.ProcessingRequest{Text: "some long article text", Operation: coretypes.Summarize, TraceID: "t1"}

	resp, err := processor.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, resp.Metadata.Cached)
	assert.Equal(t, "A short summary.", resp.Result.Str)
	assert.Equal(t, 1, provider.calls)

	resp2, err := processor.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp2.Metadata.Cached)
	assert.Equal(t, "A short summary.", resp2.Result.Str)
	assert.Equal(t, 1, provider.calls, "second call must be served from cache, not the provider")
}

func TestProcessRejectsEmptyText(t *testing.T) {
	processor, err := NewTextProcessor(newTestFacade(t), resilience.NewOrchestrator(nil), &stubProvider{}, DefaultLimits(), nil)
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), coretypes.ProcessingRequest{Text: "   ", Operation: coretypes.Summarize})
	assert.Error(t, err)
}

func TestProcessQARequiresQuestion(t *testing.T) {
	processor, err := NewTextProcessor(newTestFacade(t), resilience.NewOrchestrator(nil), &stubProvider{}, DefaultLimits(), nil)
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), coretypes.ProcessingRequest{Text: "context text", Operation: coretypes.QA})
	assert.Error(t, err)
}

func TestProcessFallsBackOnPersistentProviderFailure(t *testing.T) {
	provider := &stubProvider{err: coreerrors.NewTransientAIError("gemini", "m", "boom")}
	processor, err := NewTextProcessor(newTestFacade(t), resilience.NewOrchestrator(nil), provider, DefaultLimits(), nil)
	require.NoError(t, err)

	req := coretypes.ProcessingRequest{Text: "text", Operation: coretypes.Sentiment}
	resp, err := processor.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Metadata.Degraded)
	assert.Equal(t, coretypes.Neutral, resp.Result.Sentiment.Sentiment)
}

func TestProcessSurfacesPermanentProviderFailure(t *testing.T) {
	provider := &stubProvider{err: coreerrors.NewAuthenticationError("gemini", "m", "bad key")}
	processor, err := NewTextProcessor(newTestFacade(t), resilience.NewOrchestrator(nil), provider, DefaultLimits(), nil)
	require.NoError(t, err)

	req := coretypes.ProcessingRequest{Text: "text", Operation: coretypes.KeyPoints}
	_, err = processor.Process(context.Background(), req)
	require.Error(t, err)
	var le *coreerrors.LLMError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, coreerrors.TypeAuthentication, le.Type)
}

func TestParseResultListSplitsLines(t *testing.T) {
	result, err := parseResult("- first\n- second\n\n- third", coretypes.FallbackList)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, result.List)
}

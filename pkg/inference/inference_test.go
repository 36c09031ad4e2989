package inference_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

type echoModel struct {
	mu    sync.Mutex
	calls int
}

func (m *echoModel) Generate(_ context.Context, prompts []string) ([]string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = "echo:" + p
	}
	return out, nil
}

type failingModel struct{}

func (failingModel) Generate(_ context.Context, _ []string) ([]string, error) {
	return nil, errors.New("model unavailable")
}

func TestEngine_SubmitSingle(t *testing.T) {
	m := &echoModel{}
	eng, err := inference.NewEngine(m, inference.Config{
		MaxBatchSize:  4,
		BatchInterval: 5 * time.Millisecond,
		ApplyTemplate: false,
	}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	res, err := eng.Submit(context.Background(), inference.Request{Prompt: "hi", SkipChatTemplate: true})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", res.Output)
	assert.NotEmpty(t, res.ID)
	assert.GreaterOrEqual(t, res.QueueWaitSeconds, 0.0)
	assert.Equal(t, 1, res.PromptTokens)
}

func TestEngine_BatchesConcurrentRequests(t *testing.T) {
	m := &echoModel{}
	eng, err := inference.NewEngine(m, inference.Config{
		MaxBatchSize:  8,
		BatchInterval: 10 * time.Millisecond,
	}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := eng.Submit(context.Background(), inference.Request{Prompt: "p", SkipChatTemplate: true})
			require.NoError(t, err)
			results[i] = res.Output
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, "echo:p", r)
	}
}

func TestEngine_ModelErrorPropagates(t *testing.T) {
	eng, err := inference.NewEngine(failingModel{}, inference.Config{
		BatchInterval: 5 * time.Millisecond,
	}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	_, err = eng.Submit(context.Background(), inference.Request{Prompt: "x", SkipChatTemplate: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestEngine_RequestIDPreserved(t *testing.T) {
	m := &echoModel{}
	eng, err := inference.NewEngine(m, inference.Config{
		BatchInterval: 5 * time.Millisecond,
	}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	res, err := eng.Submit(context.Background(), inference.Request{ID: "req-42", Prompt: "hi", SkipChatTemplate: true})
	require.NoError(t, err)
	assert.Equal(t, "req-42", res.ID)
}

func TestEngine_ChatTemplateWrapping(t *testing.T) {
	var captured string
	m := capturingModel{capture: &captured}
	eng, err := inference.NewEngine(m, inference.Config{
		BatchInterval: 5 * time.Millisecond,
		ApplyTemplate: true,
		DefaultSystem: "be nice",
	}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	_, err = eng.Submit(context.Background(), inference.Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(captured, "be nice"))
	assert.True(t, strings.Contains(captured, "hello"))
}

type capturingModel struct {
	capture *string
}

func (m capturingModel) Generate(_ context.Context, prompts []string) ([]string, error) {
	*m.capture = prompts[0]
	return []string{"ok"}, nil
}

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"github.com/google/uuid"
)

// recorder appends LLMRequestRecord entries to a WorkflowState under a
// mutex, keeping Seq dense and monotonic even when deliberation and
// execution issue calls concurrently within a stage. A completion channel
// drained by a single goroutine would work too; the mutex is simpler given
// every caller already runs inside this process.
type recorder struct {
	mu    sync.Mutex
	state *WorkflowState
	sink  progress.Sink
}

func newRecorder(state *WorkflowState, sink progress.Sink) *recorder {
	if sink == nil {
		sink = progress.NullSink{}
	}
	return &recorder{state: state, sink: sink}
}

func (r *recorder) append(rec LLMRequestRecord) {
	r.mu.Lock()
	rec.Seq = len(r.state.LLMRequests) + 1
	rec.Iteration = r.state.Iteration
	r.state.LLMRequests = append(r.state.LLMRequests, rec)
	r.mu.Unlock()

	r.sink.Emit(progress.Event{
		Type:      progress.TypeLLMRequest,
		Stage:     rec.Stage,
		Iteration: rec.Iteration,
		Data: map[string]any{
			"seq":              rec.Seq,
			"label":            rec.Label,
			"source":           rec.Source,
			"request_id":       rec.RequestID,
			"duration_seconds": rec.DurationSeconds,
		},
	})
}

// recordingLLMClient wraps llmclient.Client so every orchestrator-issued
// generation call (recruitment, horizontal synthesis, evaluation,
// synthesis) lands in state.LLMRequests with source="orchestrator".
type recordingLLMClient struct {
	inner    llmclient.Client
	rec      *recorder
	stage    string
	label    string
	endpoint string
}

func (c *recordingLLMClient) Generate(ctx context.Context, in llmclient.GenerateInput) (string, *llmclient.Meta, error) {
	start := time.Now()
	requestID := uuid.NewString()
	text, meta, err := c.inner.Generate(ctx, in)
	duration := time.Since(start).Seconds()

	response := text
	if err != nil {
		response = fmt.Sprintf("error: %v", err)
	}

	var backendMeta, traceMeta any
	if meta != nil {
		backendMeta = meta
		if meta.Otel != nil {
			traceMeta = meta.Otel
		}
	}

	c.rec.append(LLMRequestRecord{
		Stage:           c.stage,
		Label:           c.label,
		Source:          "orchestrator",
		Prompt:          in.Prompt,
		Response:        response,
		Endpoint:        c.endpoint,
		StartTimeUTC:    start.UTC().Format(time.RFC3339Nano),
		RequestID:       requestID,
		DurationSeconds: duration,
		AgentRole:       "orchestrator",
		BackendMetadata: backendMeta,
		TraceMetadata:   traceMeta,
	})

	return text, meta, err
}

// recordingTransport wraps transport.Transport so every worker call within
// a stage lands in state.LLMRequests with source="worker-<k>".
type recordingTransport struct {
	inner            transport.Transport
	rec              *recorder
	stage            string
	sourceByEndpoint map[string]string
}

func newRecordingTransport(inner transport.Transport, rec *recorder, stage string, experts []expert.Expert) *recordingTransport {
	sources := make(map[string]string, len(experts))
	for _, e := range experts {
		sources[e.Endpoint] = fmt.Sprintf("worker-%d", e.Index+1)
	}
	return &recordingTransport{inner: inner, rec: rec, stage: stage, sourceByEndpoint: sources}
}

func (t *recordingTransport) Call(ctx context.Context, endpoint string, req transport.Request) (transport.Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	resp, err := t.inner.Call(ctx, endpoint, req)
	duration := time.Since(start).Seconds()

	prompt := req.Subtask
	response := resp.Output
	var backendMeta, traceMeta any
	if err != nil {
		response = fmt.Sprintf("error: %v", err)
	} else {
		if resp.LLMPrompt != "" {
			prompt = resp.LLMPrompt
		}
		if resp.LLMResponse != "" {
			response = resp.LLMResponse
		}
		if resp.LLMMeta != nil {
			backendMeta = resp.LLMMeta
		}
		if resp.Otel != nil {
			traceMeta = resp.Otel
		}
	}

	source := t.sourceByEndpoint[endpoint]
	if source == "" {
		source = "worker"
	}
	label := fmt.Sprintf("%s_%s", t.stage, req.AgentBRole)

	t.rec.append(LLMRequestRecord{
		Stage:           t.stage,
		Label:           label,
		Source:          source,
		Prompt:          prompt,
		Response:        response,
		Endpoint:        endpoint,
		StartTimeUTC:    start.UTC().Format(time.RFC3339Nano),
		RequestID:       requestID,
		DurationSeconds: duration,
		AgentRole:       req.AgentBRole,
		Round:           transport.RoundFrom(ctx),
		BackendMetadata: backendMeta,
		TraceMetadata:   traceMeta,
	})

	return resp, err
}

// Package transport is the worker transport: a thin JSON/HTTP client that
// dispatches a subtask to a recruited expert's worker endpoint and returns
// its output, propagating trace context headers plus an X-Request-ID header
// for correlation. Pure transport: it does not retry and does not touch
// workflow state.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Sentinel errors in the cross-cutting taxonomy shared with pkg/llmclient.
var (
	// ErrConfigError indicates the transport was misconfigured (e.g. an
	// empty endpoint) and the caller should treat this as fatal.
	ErrConfigError = errors.New("transport: configuration error")

	// ErrConnectFailed indicates the request could not reach the worker.
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("transport: timeout")
)

// RemoteError wraps a non-2xx HTTP response, preserving the status code and
// a bounded prefix of the response body for diagnostics.
type RemoteError struct {
	Status     int
	BodyPrefix string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("transport: remote error: status=%d body=%q", e.Status, e.BodyPrefix)
}

const bodyPrefixLimit = 512

// DefaultScenario tags every worker request that doesn't set its own
// scenario, so workers can distinguish orchestrated traffic from ad-hoc
// probes.
const DefaultScenario = "agentverse"

type roundKey struct{}

// WithRound annotates ctx with the deliberation round (or solver iteration)
// the enclosed worker calls belong to. Observers wrapping a Transport can
// read it back with RoundFrom.
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, roundKey{}, round)
}

// RoundFrom returns the round recorded by WithRound, or 0 when absent.
func RoundFrom(ctx context.Context) int {
	if v, ok := ctx.Value(roundKey{}).(int); ok {
		return v
	}
	return 0
}

// Request is the Worker RPC request body.
type Request struct {
	Subtask        string `json:"subtask"`
	Scenario       string `json:"scenario,omitempty"`
	AgentBRole     string `json:"agent_b_role,omitempty"`
	AgentBContract string `json:"agent_b_contract,omitempty"`
}

// Response is the Worker RPC response body.
type Response struct {
	TaskID      string         `json:"task_id"`
	AgentID     string         `json:"agent_id"`
	Output      string         `json:"output"`
	LLMPrompt   string         `json:"llm_prompt,omitempty"`
	LLMResponse string         `json:"llm_response,omitempty"`
	LLMEndpoint string         `json:"llm_endpoint,omitempty"`
	LLMMeta     map[string]any `json:"llm_meta,omitempty"`
	Otel        map[string]any `json:"otel,omitempty"`
}

// Transport dispatches a Worker RPC call.
type Transport interface {
	Call(ctx context.Context, endpoint string, req Request) (Response, error)
}

// HTTPTransport is the production Transport, a stdlib net/http JSON client.
// No pack repo wires a third-party HTTP client for single-shot JSON POSTs,
// so net/http is the idiomatic choice here (see DESIGN.md).
type HTTPTransport struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPTransport builds an HTTPTransport with the given per-call timeout.
// The underlying client is otelhttp-instrumented so each worker call records
// its own client span under the submitting stage's span.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Timeout: timeout,
	}
}

// Call issues the Worker RPC and decodes the response.
func (t *HTTPTransport) Call(ctx context.Context, endpoint string, req Request) (Response, error) {
	if endpoint == "" {
		return Response{}, fmt.Errorf("%w: empty worker endpoint", ErrConfigError)
	}
	if req.Scenario == "" {
		req.Scenario = DefaultScenario
	}
	slog.Debug("calling worker", "endpoint", endpoint, "role", req.AgentBRole, "scenario", req.Scenario)

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal request: %v", ErrConfigError, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %v", ErrConfigError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range tracing.Inject(ctx) {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Response{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read response: %v", ErrConnectFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		prefix := string(respBody)
		if len(prefix) > bodyPrefixLimit {
			prefix = prefix[:bodyPrefixLimit]
		}
		return Response{}, &RemoteError{Status: resp.StatusCode, BodyPrefix: prefix}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ErrConnectFailed, err)
	}
	return out, nil
}

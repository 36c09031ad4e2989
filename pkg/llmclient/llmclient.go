// Package llmclient is the synchronous JSON/HTTP client for the inference
// backend. It shares the error taxonomy with pkg/transport: both call
// paths surface the same ConfigError/ConnectFailed/Timeout/RemoteError
// states.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/tracing"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Re-export the shared sentinel errors under this package too, so callers
// that only import llmclient can still errors.Is against them without
// reaching into pkg/transport.
var (
	ErrConfigError   = transport.ErrConfigError
	ErrConnectFailed = transport.ErrConnectFailed
	ErrTimeout       = transport.ErrTimeout
)

// RemoteError is an alias of transport.RemoteError; the LLM backend is
// reached the same way a remote worker would be, keeping one wrapped-error
// shape for both call sites (see DESIGN.md Open Question decision).
type RemoteError = transport.RemoteError

// request is the LLM RPC request body.
type request struct {
	Prompt           string `json:"prompt"`
	MaxTokens        int    `json:"max_tokens,omitempty"`
	SystemPrompt     string `json:"system_prompt,omitempty"`
	SkipChatTemplate bool   `json:"skip_chat_template,omitempty"`
}

// Meta carries optional usage/telemetry fields from the LLM RPC response.
type Meta struct {
	PromptTokens     int            `json:"prompt_tokens,omitempty"`
	CompletionTokens int            `json:"completion_tokens,omitempty"`
	Otel             map[string]any `json:"otel,omitempty"`
}

// response is the LLM RPC response body.
type response struct {
	Output string `json:"output"`
	Meta   *Meta  `json:"meta,omitempty"`
}

// GenerateInput carries everything Generate needs to build an LLM RPC call.
type GenerateInput struct {
	Prompt           string
	MaxTokens        int
	SystemPrompt     string
	SkipChatTemplate bool
}

// Client dispatches LLM RPC calls.
type Client interface {
	Generate(ctx context.Context, in GenerateInput) (string, *Meta, error)
}

// HTTPClient is the production Client.
type HTTPClient struct {
	URL     string
	HTTP    *http.Client
	Timeout time.Duration
}

// NewHTTPClient builds an HTTPClient targeting url with the given per-call
// timeout. The underlying client is otelhttp-instrumented, same as the
// worker transport.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		URL:     url,
		HTTP:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Timeout: timeout,
	}
}

// Generate issues the LLM RPC and returns the generated text plus optional
// usage metadata.
func (c *HTTPClient) Generate(ctx context.Context, in GenerateInput) (string, *Meta, error) {
	if c.URL == "" {
		return "", nil, fmt.Errorf("%w: empty LLM URL", ErrConfigError)
	}

	body, err := json.Marshal(request{
		Prompt:           in.Prompt,
		MaxTokens:        in.MaxTokens,
		SystemPrompt:     in.SystemPrompt,
		SkipChatTemplate: in.SkipChatTemplate,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: marshal request: %v", ErrConfigError, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("%w: build request: %v", ErrConfigError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range tracing.Inject(ctx) {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, fmt.Errorf("%w: read response: %v", ErrConnectFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		prefix := string(respBody)
		if len(prefix) > 512 {
			prefix = prefix[:512]
		}
		return "", nil, &RemoteError{Status: resp.StatusCode, BodyPrefix: prefix}
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", nil, fmt.Errorf("%w: decode response: %v", ErrConnectFailed, err)
	}
	return out.Output, out.Meta, nil
}

// Package inference implements the inference backend: a continuous-batching
// engine in front of a pluggable black-box model generator. Concurrent
// generation requests are queued, formed into batches, and handed to the
// model together; each request is logged through a
// START/PROGRESS/DONE/ERROR lifecycle and accounted for with otel metrics.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Model is the pluggable black-box generator. Engine only owns batching,
// metrics, and lifecycle around whatever Model is supplied.
type Model interface {
	// Generate produces completions for a batch of prompts in one call,
	// returning one output per prompt in the same order.
	Generate(ctx context.Context, prompts []string) ([]string, error)
}

// Request is a single generation request submitted to the engine.
type Request struct {
	ID               string
	Prompt           string
	SystemPrompt     string
	MaxTokens        int
	SkipChatTemplate bool
}

// Result is the outcome of one Request. QueueWaitSeconds is the time from
// admission to the request's batch being handed to the model.
type Result struct {
	ID               string
	Output           string
	QueueWaitSeconds float64
	PromptTokens     int
	CompletionTokens int
	Err              error
}

// Config tunes the batching scheduler.
type Config struct {
	MaxBatchSize     int
	BatchInterval    time.Duration
	ProgressInterval time.Duration
	QueueCapacity    int
	ApplyTemplate    bool
	DefaultSystem    string
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 8
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 20 * time.Millisecond
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 2 * time.Second
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 256
	}
	return c
}

type pendingRequest struct {
	req      Request
	enqueued time.Time
	reply    chan Result
}

// Engine is the continuous-batching scheduler: a single goroutine drains a
// buffered request channel on a ticker, forms batches, and dispatches each
// to Model in its own goroutine so later arrivals keep batching while an
// earlier batch is still generating.
type Engine struct {
	cfg   Config
	model Model

	queue    chan pendingRequest
	inFlight atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc

	metrics metrics
}

type metrics struct {
	requestsTotal    metric.Int64Counter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	latency          metric.Float64Histogram
	queueWait        metric.Float64Histogram
	batchSize        metric.Int64Histogram
	inFlightGauge    metric.Int64ObservableGauge
}

func newMetrics(meter metric.Meter, e *Engine) (metrics, error) {
	var m metrics
	var err error

	if m.requestsTotal, err = meter.Int64Counter("inference_requests_total"); err != nil {
		return m, err
	}
	if m.promptTokens, err = meter.Int64Counter("inference_prompt_tokens_total"); err != nil {
		return m, err
	}
	if m.completionTokens, err = meter.Int64Counter("inference_completion_tokens_total"); err != nil {
		return m, err
	}
	if m.latency, err = meter.Float64Histogram("inference_request_latency_seconds"); err != nil {
		return m, err
	}
	if m.queueWait, err = meter.Float64Histogram("inference_queue_wait_seconds"); err != nil {
		return m, err
	}
	if m.batchSize, err = meter.Int64Histogram("inference_batch_size"); err != nil {
		return m, err
	}
	m.inFlightGauge, err = meter.Int64ObservableGauge("inference_inflight_requests",
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(e.inFlight.Load())
			return nil
		}))
	return m, err
}

// NewEngine builds an Engine around model, instrumented against meter.
// Passing a noop meter (e.g. noop.NewMeterProvider().Meter(name)) is safe
// and costs nothing.
func NewEngine(model Model, cfg Config, meter metric.Meter) (*Engine, error) {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:   cfg,
		model: model,
		queue: make(chan pendingRequest, cfg.QueueCapacity),
	}
	m, err := newMetrics(meter, e)
	if err != nil {
		return nil, fmt.Errorf("inference: build metrics: %w", err)
	}
	e.metrics = m
	return e, nil
}

// Start launches the batching scheduler goroutine. Call Stop to shut it
// down.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop shuts down the scheduler and waits for in-flight batches to finish.
// Safe to call once after Start.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Submit enqueues a generation request and blocks until its result is
// ready or ctx is done.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	pr := pendingRequest{req: req, enqueued: time.Now(), reply: make(chan Result, 1)}

	select {
	case e.queue <- pr:
	case <-ctx.Done():
		return Result{ID: req.ID}, ctx.Err()
	}

	select {
	case res := <-pr.reply:
		return res, res.Err
	case <-ctx.Done():
		return Result{ID: req.ID}, ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainAndDispatch(ctx)
		}
	}
}

func (e *Engine) drainAndDispatch(ctx context.Context) {
	batch := make([]pendingRequest, 0, e.cfg.MaxBatchSize)
loop:
	for len(batch) < e.cfg.MaxBatchSize {
		select {
		case pr := <-e.queue:
			batch = append(batch, pr)
		default:
			break loop
		}
	}
	if len(batch) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatch(ctx, batch)
	}()
}

func (e *Engine) dispatch(ctx context.Context, batch []pendingRequest) {
	inflight := e.inFlight.Add(int64(len(batch)))

	e.metrics.batchSize.Record(ctx, int64(len(batch)))

	prompts := make([]string, len(batch))
	waits := make([]float64, len(batch))
	for i, pr := range batch {
		prompts[i] = e.wrapPrompt(pr.req)
		waits[i] = time.Since(pr.enqueued).Seconds()
		e.metrics.queueWait.Record(ctx, waits[i])
		slog.Info("inference request START",
			"request_id", pr.req.ID, "queue_wait_seconds", waits[i], "inflight", inflight)
	}

	start := time.Now()
	stopProgress := e.reportProgress(batch, start)
	outputs, err := e.model.Generate(ctx, prompts)
	stopProgress()
	elapsed := time.Since(start).Seconds()
	e.metrics.latency.Record(ctx, elapsed)

	if err != nil {
		e.metrics.requestsTotal.Add(ctx, int64(len(batch)), metric.WithAttributes(attribute.String("status", "error")))
		remaining := e.inFlight.Add(-int64(len(batch)))
		for i, pr := range batch {
			slog.Error("inference request ERROR",
				"request_id", pr.req.ID, "elapsed_seconds", elapsed, "inflight", remaining, "error", err)
			pr.reply <- Result{ID: pr.req.ID, QueueWaitSeconds: waits[i], Err: fmt.Errorf("inference: generate: %w", err)}
		}
		return
	}

	e.metrics.requestsTotal.Add(ctx, int64(len(batch)), metric.WithAttributes(attribute.String("status", "ok")))
	remaining := e.inFlight.Add(-int64(len(batch)))
	for i, pr := range batch {
		var out string
		if i < len(outputs) {
			out = outputs[i]
		}
		promptTokens := len(strings.Fields(prompts[i]))
		completionTokens := len(strings.Fields(out))
		e.metrics.promptTokens.Add(ctx, int64(promptTokens))
		e.metrics.completionTokens.Add(ctx, int64(completionTokens))
		slog.Info("inference request DONE",
			"request_id", pr.req.ID, "elapsed_seconds", elapsed,
			"prompt_tokens", promptTokens, "completion_tokens", completionTokens, "inflight", remaining)
		pr.reply <- Result{
			ID:               pr.req.ID,
			Output:           out,
			QueueWaitSeconds: waits[i],
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
		}
	}
}

// reportProgress logs a PROGRESS line per queued request every
// ProgressInterval while the model call is running. The model is a black
// box, so the per-token counts of the original's streaming loop collapse to
// elapsed time and in-flight count here.
func (e *Engine) reportProgress(batch []pendingRequest, start time.Time) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.cfg.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				elapsed := time.Since(start).Seconds()
				for _, pr := range batch {
					slog.Info("inference request PROGRESS",
						"request_id", pr.req.ID, "elapsed_seconds", elapsed, "inflight", e.inFlight.Load())
				}
			}
		}
	}()
	return func() { close(done) }
}

// wrapPrompt applies the chat template, when enabled.
func (e *Engine) wrapPrompt(req Request) string {
	if req.SkipChatTemplate || !e.cfg.ApplyTemplate {
		return req.Prompt
	}
	system := req.SystemPrompt
	if system == "" {
		system = e.cfg.DefaultSystem
	}
	var b strings.Builder
	if system != "" {
		b.WriteString("<|system|>\n")
		b.WriteString(system)
		b.WriteString("\n")
	}
	b.WriteString("<|user|>\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n<|assistant|>\n")
	return b.String()
}

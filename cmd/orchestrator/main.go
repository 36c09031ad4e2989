// Command orchestrator wires one complete run of the Recruit -> Deliberate
// -> Execute -> Evaluate -> Synthesize workflow and prints the resulting
// WorkflowState as JSON. It is a single-shot CLI entrypoint, not a server:
// there is no HTTP listener, router, or health endpoint anywhere in this
// tree (those are the external collaborators workers/the inference backend
// already are, reached only as clients).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/config"
	"github.com/codeready-toolchain/agentverse/pkg/inference"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/codeready-toolchain/agentverse/pkg/tracing"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"github.com/codeready-toolchain/agentverse/pkg/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

func main() {
	task := flag.String("task", "", "task for the orchestrator to solve")
	taskID := flag.String("task-id", "", "task ID to tag this run with (default: a generated UUID)")
	localInference := flag.Bool("local-inference", false,
		"serve generation from an in-process batching engine instead of calling LLM_URL over HTTP")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	resolvedTask := strings.TrimSpace(strings.Join(append([]string{*task}, flag.Args()...), " "))
	if resolvedTask == "" {
		fmt.Fprintln(os.Stderr, "usage: orchestrator -task \"...\" [trailing words are appended to the task]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm, stop, err := buildLLMClient(ctx, cfg, *localInference)
	if err != nil {
		slog.Error("build LLM client", "error", err)
		os.Exit(1)
	}
	defer stop()

	driver := &workflow.Driver{
		Config:    cfg,
		Transport: transport.NewHTTPTransport(time.Duration(cfg.WorkerTimeout) * time.Second),
		LLM:       llm,
		Progress:  progress.NullSink{},
		Tracer:    tracing.NewOTELTracer("agentverse/workflow"),
	}

	id := *taskID
	if id == "" {
		id = uuid.NewString()
	}

	state, err := driver.Run(ctx, id, resolvedTask)
	if err != nil {
		slog.Error("workflow run failed", "error", err, "task_id", id)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		slog.Error("encode workflow state", "error", err)
		os.Exit(1)
	}
}

// buildLLMClient picks between the two ways this entrypoint can reach the
// inference backend: an in-process batching Engine (-local-inference),
// wired the same way a colocated worker would embed it, or an HTTPClient
// against LLM_URL when the backend runs as its own remote process. The
// returned stop func shuts down whichever one was started.
func buildLLMClient(ctx context.Context, cfg *config.Config, local bool) (llmclient.Client, func(), error) {
	if !local {
		client := llmclient.NewHTTPClient(cfg.LLMURL, time.Duration(cfg.LLMTimeout)*time.Second)
		return client, func() {}, nil
	}

	engine, err := inference.NewEngine(stubModel{}, inference.Config{
		ApplyTemplate: cfg.ApplyChatTemplate,
		DefaultSystem: cfg.DefaultSystemPrompt,
	}, otel.Meter("agentverse/inference"))
	if err != nil {
		return nil, nil, fmt.Errorf("build inference engine: %w", err)
	}
	engine.Start(ctx)
	return inference.EngineClient{Engine: engine}, engine.Stop, nil
}

// stubModel stands in for a real vLLM/llama.cpp-backed Model when running
// with -local-inference; the model itself is out of scope here (see
// pkg/inference.Model).
type stubModel struct{}

func (stubModel) Generate(_ context.Context, prompts []string) ([]string, error) {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = "[local-inference stub] " + truncate(p, 120)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

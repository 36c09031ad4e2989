package inference

import (
	"context"

	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
)

// EngineClient adapts Engine to llmclient.Client, letting the workflow
// driver address this process's own batching engine directly instead of
// an external inference HTTP endpoint (see cmd/orchestrator's -local-
// inference wiring).
type EngineClient struct {
	Engine *Engine
}

// Generate submits in as one Request to the engine and blocks for its
// batched result.
func (c EngineClient) Generate(ctx context.Context, in llmclient.GenerateInput) (string, *llmclient.Meta, error) {
	res, err := c.Engine.Submit(ctx, Request{
		Prompt:           in.Prompt,
		SystemPrompt:     in.SystemPrompt,
		MaxTokens:        in.MaxTokens,
		SkipChatTemplate: in.SkipChatTemplate,
	})
	if err != nil {
		return "", nil, err
	}
	meta := &llmclient.Meta{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	}
	return res.Output, meta, nil
}

// Package synthesis produces the final user-visible answer: one
// high-token-budget LLM call that turns the last execution, the iteration
// history, and the final evaluation into a standalone response.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/agentverse/pkg/execution"
	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
)

const noExecutionSentinel = "No execution results available."

const synthesisPromptTemplate = `You are producing the final, standalone answer for a multi-agent task.

Task: %s

Iteration summary:
%s

Results:
%s
%s
Produce a single self-contained answer. Do not reference "the above" or any other part of this prompt — the reader only sees your response.`

// minTokenBudget is the floor for the synthesis call, which needs to
// restate the full result set coherently.
const minTokenBudget = 4096

// IterationSummary is the subset of a WorkflowState iteration-history entry
// the synthesis prompt needs.
type IterationSummary struct {
	Iteration int
	Score     int
	Experts   []expert.Role
}

// Input carries everything Run needs to produce the final answer.
type Input struct {
	Task       string
	History    []IterationSummary
	Execution  *execution.Result
	Evaluation *expert.Evaluation
}

// Synthesizer runs the final synthesis step.
type Synthesizer struct {
	LLM       llmclient.Client
	MaxTokens int
}

// Run returns the fixed sentinel string when no execution ever completed
// (e.g. the workflow never got past stage 3). Otherwise it issues one LLM
// call with a >= 4096-token budget.
func (s *Synthesizer) Run(ctx context.Context, in Input) (string, error) {
	if in.Execution == nil {
		return noExecutionSentinel, nil
	}

	prompt := buildPrompt(in)
	maxTokens := s.MaxTokens
	if maxTokens < minTokenBudget {
		maxTokens = minTokenBudget
	}

	text, _, err := s.LLM.Generate(ctx, llmclient.GenerateInput{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	return text, nil
}

func buildPrompt(in Input) string {
	var results strings.Builder
	for i, o := range in.Execution.Outputs {
		if i > 0 {
			results.WriteString("\n\n")
		}
		fmt.Fprintf(&results, "[%s]:\n%s", o.Expert, o.Output)
	}

	var iterSummary strings.Builder
	for _, h := range in.History {
		roles := make([]string, len(h.Experts))
		for i, r := range h.Experts {
			roles[i] = string(r)
		}
		fmt.Fprintf(&iterSummary, "Iteration %d: score=%d, experts=%s\n", h.Iteration+1, h.Score, strings.Join(roles, ", "))
	}
	summary := iterSummary.String()
	if summary == "" {
		summary = "(Single iteration)"
	}

	evaluationText := ""
	if in.Evaluation != nil {
		evaluationText = fmt.Sprintf("\nScore: %d/100\nGoal Achieved: %t\nFeedback: %s\n",
			in.Evaluation.Score, in.Evaluation.GoalAchieved, in.Evaluation.Feedback)
	}

	return fmt.Sprintf(synthesisPromptTemplate, in.Task, summary, results.String(), evaluationText)
}

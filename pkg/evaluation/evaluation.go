// Package evaluation scores an execution result against the original task
// and decides whether the workflow driver should iterate again. The model's
// verdict is post-processed by four rules applied in order: threshold
// override, budget override, consistency override, feedback fallback.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/agentverse/pkg/execution"
	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/jsonextract"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
)

const evaluationPromptTemplate = `You are evaluating whether a team of experts has accomplished the following task.

Task: %s

Results:
%s

This is iteration %d of %d.

Respond in JSON:
{
  "goal_achieved": true | false,
  "score": 0-100,
  "criteria": {"completeness": 0-100, "correctness": 0-100, "clarity": 0-100, "relevance": 0-100, "actionability": 0-100},
  "rationale": "...",
  "feedback": "...",
  "missing_aspects": ["..."],
  "should_iterate": true | false
}`

const defaultScore = 50

// Input carries everything Run needs beyond the execution result itself.
type Input struct {
	Task             string
	Iteration        int // 0-based
	MaxIterations    int
	SuccessThreshold int // 0 disables the threshold override
}

// Evaluator runs the evaluation stage.
type Evaluator struct {
	LLM llmclient.Client
}

// Run builds the evaluation prompt from the execution outputs, calls the
// LLM, parses its JSON response (defaulting to an empty object), and
// applies the interpretation rules in order: threshold override, budget
// override, consistency override, then feedback fallback.
func (e *Evaluator) Run(ctx context.Context, in Input, execution execution.Result) (expert.Evaluation, error) {
	prompt := buildPrompt(in, execution)

	text, _, err := e.LLM.Generate(ctx, llmclient.GenerateInput{Prompt: prompt, MaxTokens: 1024})
	if err != nil {
		return fallbackEvaluation(in), nil
	}

	parsed := jsonextract.ParseStructured(text, map[string]any{})
	obj, _ := jsonextract.AsObject(parsed)

	goalAchieved := jsonextract.BoolField(obj, "goal_achieved", false)
	score := jsonextract.IntField(obj, "score", defaultScore)
	shouldIterate := jsonextract.BoolField(obj, "should_iterate", false)
	rationale := jsonextract.StringField(obj, "rationale", "")
	missingAspects := jsonextract.StringSliceField(obj, "missing_aspects")
	feedback := jsonextract.StringField(obj, "feedback", "")
	criteria := parseCriteria(obj)

	// Threshold override is authoritative over the model's own
	// goal_achieved/should_iterate verdict.
	if in.SuccessThreshold > 0 {
		if score >= in.SuccessThreshold {
			goalAchieved = true
			shouldIterate = false
		} else {
			goalAchieved = false
			shouldIterate = true
		}
	}

	// Budget override: the last allowed iteration never iterates again.
	if in.Iteration+1 >= in.MaxIterations {
		shouldIterate = false
	}

	// Consistency override.
	if goalAchieved {
		shouldIterate = false
	}

	// Feedback fallback.
	if shouldIterate && strings.TrimSpace(feedback) == "" {
		feedback = fallbackFeedback(score, rationale, missingAspects)
	}

	return expert.Evaluation{
		GoalAchieved:   goalAchieved,
		Score:          score,
		Criteria:       criteria,
		Rationale:      rationale,
		Feedback:       feedback,
		MissingAspects: missingAspects,
		ShouldIterate:  shouldIterate,
	}, nil
}

func buildPrompt(in Input, execution execution.Result) string {
	var b strings.Builder
	for i, o := range execution.Outputs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]:\n%s", o.Expert, o.Output)
	}
	return fmt.Sprintf(evaluationPromptTemplate, in.Task, b.String(), in.Iteration+1, in.MaxIterations)
}

func parseCriteria(obj map[string]any) *expert.Criteria {
	raw, ok := obj["criteria"]
	if !ok {
		return nil
	}
	m, ok := jsonextract.AsObject(raw)
	if !ok {
		return nil
	}
	return &expert.Criteria{
		Completeness:  jsonextract.IntField(m, "completeness", 0),
		Correctness:   jsonextract.IntField(m, "correctness", 0),
		Clarity:       jsonextract.IntField(m, "clarity", 0),
		Relevance:     jsonextract.IntField(m, "relevance", 0),
		Actionability: jsonextract.IntField(m, "actionability", 0),
	}
}

func fallbackFeedback(score int, rationale string, missing []string) string {
	var parts []string
	if rationale != "" {
		parts = append(parts, fmt.Sprintf("Previous rationale: %s", rationale))
	}
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("Missing or weak aspects: %s.", strings.Join(missing, ", ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Score %d/100 is below threshold. Consider adjusting the expert team or approach.", score)
	}
	return strings.Join(parts, " ")
}

// fallbackEvaluation is returned when the LLM call itself fails: the
// evaluator cannot score the iteration, so it forces iteration unless the
// budget is exhausted, matching the budget-override rule's authority over
// any other signal.
func fallbackEvaluation(in Input) expert.Evaluation {
	shouldIterate := in.Iteration+1 < in.MaxIterations
	feedback := ""
	if shouldIterate {
		feedback = "Evaluation call failed; retrying with the same task."
	}
	return expert.Evaluation{
		GoalAchieved:  false,
		Score:         defaultScore,
		Feedback:      feedback,
		ShouldIterate: shouldIterate,
	}
}

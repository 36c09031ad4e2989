// Package recruiter asks the LLM to propose an expert roster and
// communication topology for a task, then materializes that proposal into
// bound Expert values assigned round-robin across the configured worker
// endpoints.
package recruiter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/jsonextract"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
)

// ErrNoWorkerURLs is fatal: the recruiter cannot bind any expert to an
// endpoint without at least one configured worker.
var ErrNoWorkerURLs = fmt.Errorf("recruiter: no worker URLs configured")

const recruitmentPromptTemplate = `You are coordinating a team of expert agents to accomplish the following task.

Task: %s
%s
Decide:
1. What expert roles are needed (role, responsibilities, contract)
2. Whether the experts should deliberate horizontally (democratic discussion) or vertically (solver proposes, reviewers critique)
3. The execution order of roles

Respond in JSON:
{
  "experts": [{"role": "...", "responsibilities": "...", "contract": "..."}],
  "communication_structure": "horizontal" | "vertical",
  "execution_order": ["role", ...],
  "reasoning": "..."
}`

// Recruiter runs the recruitment stage.
type Recruiter struct {
	LLM        llmclient.Client
	WorkerURLs []string
	MaxWorkers int
	MaxTokens  int
}

// BuildPrompt assembles the recruitment prompt for task, optionally
// including feedback carried over from a prior iteration.
func BuildPrompt(task, feedback string) string {
	feedbackContext := ""
	if feedback != "" {
		feedbackContext = fmt.Sprintf("\nFeedback from previous iteration:\n%s\n", feedback)
	}
	return fmt.Sprintf(recruitmentPromptTemplate, task, feedbackContext)
}

// Run recruits experts for task. It returns ErrNoWorkerURLs if no worker
// endpoints are configured, the one failure here that is fatal for the
// whole workflow; an LLM failure degrades to a single default executor.
func (r *Recruiter) Run(ctx context.Context, task, feedback string) (expert.Recruitment, error) {
	if len(r.WorkerURLs) == 0 {
		return expert.Recruitment{}, ErrNoWorkerURLs
	}

	maxTokens := r.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	prompt := BuildPrompt(task, feedback)
	text, _, err := r.LLM.Generate(ctx, llmclient.GenerateInput{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		slog.Warn("recruiter LLM call failed, falling back to default expert", "error", err)
		return r.defaultRecruitment(), nil
	}

	parsed := jsonextract.ParseStructured(text, map[string]any{})
	obj, _ := jsonextract.AsObject(parsed)

	experts := r.materializeExperts(obj)
	if len(experts) == 0 {
		experts = []expert.Expert{r.defaultExpert()}
	}

	topology := expert.ParseTopology(jsonextract.StringField(obj, "communication_structure", string(expert.TopologyHorizontal)))

	order := jsonextract.StringSliceField(obj, "execution_order")
	if len(order) == 0 {
		for _, e := range experts {
			order = append(order, string(e.Role))
		}
	}

	reasoning := strings.TrimSpace(jsonextract.StringField(obj, "reasoning", ""))
	if reasoning == "" {
		reasoning = fallbackReasoning(topology, experts)
	}

	return expert.Recruitment{
		Experts:        experts,
		Topology:       topology,
		ExecutionOrder: order,
		Reasoning:      reasoning,
	}, nil
}

func (r *Recruiter) materializeExperts(obj map[string]any) []expert.Expert {
	maxWorkers := r.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	rawExperts, _ := jsonextract.AsArray(obj["experts"])
	experts := make([]expert.Expert, 0, len(rawExperts))
	for idx, raw := range rawExperts {
		if idx >= maxWorkers {
			break
		}
		m, ok := jsonextract.AsObject(raw)
		if !ok {
			continue
		}
		endpoint := r.WorkerURLs[idx%len(r.WorkerURLs)]
		experts = append(experts, expert.Expert{
			Role:             expert.ParseRole(jsonextract.StringField(m, "role", "executor")),
			Responsibilities: jsonextract.StringField(m, "responsibilities", ""),
			Contract:         jsonextract.StringField(m, "contract", ""),
			Endpoint:         endpoint,
			Index:            idx,
		})
	}
	return experts
}

func (r *Recruiter) defaultExpert() expert.Expert {
	return expert.Expert{
		Role:             expert.RoleExecutor,
		Responsibilities: "Execute the given task",
		Contract:         "You are an executor agent. Complete the assigned task thoroughly.",
		Endpoint:         r.WorkerURLs[0],
		Index:            0,
	}
}

func (r *Recruiter) defaultRecruitment() expert.Recruitment {
	e := r.defaultExpert()
	return expert.Recruitment{
		Experts:        []expert.Expert{e},
		Topology:       expert.TopologyHorizontal,
		ExecutionOrder: []string{string(e.Role)},
		Reasoning:      fallbackReasoning(expert.TopologyHorizontal, []expert.Expert{e}),
	}
}

func fallbackReasoning(topology expert.Topology, experts []expert.Expert) string {
	desc := "solver proposes, reviewers critique, solver refines"
	if topology == expert.TopologyHorizontal {
		desc = "democratic discussion among all experts"
	}
	roles := make([]string, len(experts))
	for i, e := range experts {
		roles[i] = string(e.Role)
	}
	return fmt.Sprintf("Selected %s communication structure (%s) with %d expert(s): %s.",
		topology, desc, len(experts), strings.Join(roles, ", "))
}

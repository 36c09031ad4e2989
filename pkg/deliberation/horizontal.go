// Package deliberation turns a recruited expert roster into a Decision,
// using either the horizontal protocol (democratic discussion to textual
// consensus) or the vertical protocol (one solver proposes, the remaining
// experts critique until they approve).
package deliberation

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
)

const horizontalPromptTemplate = `You are the %s in a multi-expert deliberation.
Your contract: %s

Task: %s

Discussion so far:
%s

This is round %d. Contribute your perspective. If you believe the group has reached consensus on the approach, include the exact text %s in your response.`

const synthesizeDiscussionTemplate = `Summarize the following multi-expert discussion into one final, actionable decision.

Task: %s

Discussion:
%s

Produce a single coherent final decision.`

// Horizontal runs the democratic discussion protocol.
type Horizontal struct {
	Transport transport.Transport
	LLM       llmclient.Client
	MaxRounds int
	Progress  progress.Sink
}

func (h *Horizontal) sink() progress.Sink {
	if h.Progress != nil {
		return h.Progress
	}
	return progress.NullSink{}
}

// Run executes up to MaxRounds discussion rounds, stopping early once every
// expert's response in a round contains the consensus sentinel, then
// synthesizes the discussion history into a single final decision.
func (h *Horizontal) Run(ctx context.Context, recruitment expert.Recruitment, task string) (expert.Decision, error) {
	maxRounds := h.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}

	var rounds []expert.DiscussionRound
	var history strings.Builder
	consensusReached := false

	for roundNum := 1; roundNum <= maxRounds; roundNum++ {
		historySnapshot := history.String()
		if historySnapshot == "" {
			historySnapshot = "(No discussion yet)"
		}

		responses := make([]expert.DiscussionResponse, 0, len(recruitment.Experts))
		allConsensus := true

		roundCtx := transport.WithRound(ctx, roundNum)
		for _, e := range recruitment.Experts {
			prompt := fmt.Sprintf(horizontalPromptTemplate, e.Role, e.Contract, task, historySnapshot, roundNum, expert.ConsensusSentinel)

			output := h.callExpert(roundCtx, e, prompt)
			reached := strings.Contains(output, expert.ConsensusSentinel)
			if !reached {
				allConsensus = false
			}
			responses = append(responses, expert.DiscussionResponse{
				Expert:    e.Role,
				Index:     e.Index,
				Response:  output,
				Consensus: reached,
			})
		}

		history.WriteString(fmt.Sprintf("\n--- Round %d ---\n", roundNum))
		for _, r := range responses {
			history.WriteString(fmt.Sprintf("%s: %s\n", strings.ToUpper(string(r.Expert)), r.Response))
		}

		rounds = append(rounds, expert.DiscussionRound{RoundNum: roundNum, Responses: responses})

		h.sink().Emit(progress.Event{
			Type:  progress.TypeDiscussionRound,
			Stage: "decision",
			Data: map[string]any{
				"round":     roundNum,
				"responses": responses,
				"consensus": allConsensus,
			},
		})

		if allConsensus {
			consensusReached = true
			break
		}
	}

	finalDecision, err := h.synthesize(ctx, task, history.String())
	if err != nil {
		finalDecision = history.String()
	}

	reviewerRoles := make([]expert.Role, len(recruitment.Experts))
	for i, e := range recruitment.Experts {
		reviewerRoles[i] = e.Role
	}

	return expert.Decision{
		FinalDecision:    finalDecision,
		StructureUsed:    expert.TopologyHorizontal,
		ConsensusReached: consensusReached,
		HorizontalRounds: rounds,
		ReviewerRoles:    reviewerRoles,
	}, nil
}

func (h *Horizontal) callExpert(ctx context.Context, e expert.Expert, prompt string) string {
	resp, err := h.Transport.Call(ctx, e.Endpoint, transport.Request{
		Subtask:        prompt,
		AgentBRole:     string(e.Role),
		AgentBContract: e.Contract,
	})
	if err != nil {
		return fmt.Sprintf("[Agent error: %v]", err)
	}
	return resp.Output
}

func (h *Horizontal) synthesize(ctx context.Context, task, history string) (string, error) {
	prompt := fmt.Sprintf(synthesizeDiscussionTemplate, task, history)
	out, _, err := h.LLM.Generate(ctx, llmclient.GenerateInput{Prompt: prompt, MaxTokens: 2048})
	if err != nil {
		return "", err
	}
	return out, nil
}

package deliberation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"golang.org/x/sync/errgroup"
)

const verticalSolverTemplate = `You are the solver in a vertical deliberation.
Your contract: %s

Task: %s
%s%s
Propose a concrete plan or answer.`

const verticalReviewerTemplate = `You are the %s reviewer in a vertical deliberation.
Your contract: %s

Task: %s

Proposal to review:
%s

Critique the proposal. If it fully satisfies the task, include the exact text %s in your response.`

// Vertical runs the solver/reviewer protocol.
type Vertical struct {
	Transport transport.Transport
	MaxIters  int
	Progress  progress.Sink
}

func (v *Vertical) sink() progress.Sink {
	if v.Progress != nil {
		return v.Progress
	}
	return progress.NullSink{}
}

// Run selects a solver (a recruited planner, or the first expert if none),
// treats the remaining experts as reviewers, and iterates proposal/critique
// cycles until every reviewer's critique contains the approval sentinel or
// MaxIters is reached. With no reviewers, the first proposal is
// auto-approved.
func (v *Vertical) Run(ctx context.Context, recruitment expert.Recruitment, task string) (expert.Decision, error) {
	solver, reviewers, ok := selectSolver(recruitment.Experts)
	if !ok {
		return expert.Decision{
			FinalDecision: "No solver agent available",
			StructureUsed: expert.TopologyVertical,
		}, nil
	}

	maxIters := v.MaxIters
	if maxIters <= 0 {
		maxIters = 3
	}

	var iterations []expert.SolverIteration
	proposal := ""
	critiques := ""
	allApproved := true

	for iter := 1; iter <= maxIters; iter++ {
		previousContext := ""
		if proposal != "" {
			previousContext = fmt.Sprintf("\nYour previous proposal:\n%s\n", proposal)
		}
		critiqueContext := ""
		if critiques != "" {
			critiqueContext = fmt.Sprintf("\nReviewer critiques:\n%s\n", critiques)
		}

		iterCtx := transport.WithRound(ctx, iter)
		solverPrompt := fmt.Sprintf(verticalSolverTemplate, solver.Contract, task, previousContext, critiqueContext)
		proposal = v.callExpert(iterCtx, solver, solverPrompt)

		reviewerResponses, err := v.runReviewers(iterCtx, reviewers, task, proposal)
		if err != nil {
			return expert.Decision{}, err
		}

		allApproved = true
		for _, r := range reviewerResponses {
			if !r.Approved {
				allApproved = false
			}
		}
		if len(reviewers) == 0 {
			allApproved = true
		}

		critiqueLines := make([]string, len(reviewerResponses))
		for i, r := range reviewerResponses {
			critiqueLines[i] = fmt.Sprintf("%s: %s", r.ReviewerRole, r.Critique)
		}
		critiques = strings.Join(critiqueLines, "\n")

		iterations = append(iterations, expert.SolverIteration{
			Iteration:         iter,
			Proposal:          proposal,
			ReviewerResponses: reviewerResponses,
			AllApproved:       allApproved,
		})

		v.sink().Emit(progress.Event{
			Type:  progress.TypeVerticalIteration,
			Stage: "decision",
			Data: map[string]any{
				"solver_iteration":   iter,
				"proposal":           truncate(proposal, 200),
				"reviewer_responses": reviewerResponses,
				"all_approved":       allApproved,
			},
		})

		if allApproved {
			break
		}
	}

	reviewerRoles := make([]expert.Role, len(reviewers))
	for i, r := range reviewers {
		reviewerRoles[i] = r.Role
	}

	return expert.Decision{
		FinalDecision:    proposal,
		StructureUsed:    expert.TopologyVertical,
		ConsensusReached: allApproved,
		VerticalRounds:   iterations,
		SolverRole:       solver.Role,
		ReviewerRoles:    reviewerRoles,
	}, nil
}

func (v *Vertical) runReviewers(ctx context.Context, reviewers []expert.Expert, task, proposal string) ([]expert.ReviewerResponse, error) {
	if len(reviewers) == 0 {
		return nil, nil
	}

	responses := make([]expert.ReviewerResponse, len(reviewers))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, reviewer := range reviewers {
		i, reviewer := i, reviewer
		g.Go(func() error {
			prompt := fmt.Sprintf(verticalReviewerTemplate, reviewer.Role, reviewer.Contract, task, proposal, expert.ApprovedSentinel)
			critique := v.callExpert(gctx, reviewer, prompt)
			approved := strings.Contains(critique, expert.ApprovedSentinel)

			mu.Lock()
			responses[i] = expert.ReviewerResponse{
				ReviewerRole: reviewer.Role,
				Critique:     critique,
				Approved:     approved,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (v *Vertical) callExpert(ctx context.Context, e expert.Expert, prompt string) string {
	resp, err := v.Transport.Call(ctx, e.Endpoint, transport.Request{
		Subtask:        prompt,
		AgentBRole:     string(e.Role),
		AgentBContract: e.Contract,
	})
	if err != nil {
		return fmt.Sprintf("[Agent error: %v]", err)
	}
	return resp.Output
}

// selectSolver prefers a recruited planner as solver; otherwise falls back
// to the first expert. The remaining experts become reviewers.
func selectSolver(experts []expert.Expert) (expert.Expert, []expert.Expert, bool) {
	if len(experts) == 0 {
		return expert.Expert{}, nil, false
	}
	for i, e := range experts {
		if e.Role == expert.RolePlanner {
			reviewers := make([]expert.Expert, 0, len(experts)-1)
			reviewers = append(reviewers, experts[:i]...)
			reviewers = append(reviewers, experts[i+1:]...)
			return e, reviewers, true
		}
	}
	if len(experts) > 1 {
		return experts[0], experts[1:], true
	}
	return experts[0], nil, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

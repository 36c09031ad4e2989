// Package execution turns a Decision into one subtask per recruited expert
// and fans the worker calls out in parallel, one goroutine per expert,
// joined before the stage completes.
package execution

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"golang.org/x/sync/errgroup"
)

const subtaskTemplate = `Based on your role as %s:

Responsibilities: %s

Execute your part of the plan:
%s

Original task: %s

Focus on what is relevant to your expertise.`

const decisionContextLimit = 500

// Result is the outcome of the execution stage: one ExecutionOutput per
// recruited expert plus the success/failure tally. SuccessCount plus
// FailureCount always equals the number of recruited experts.
type Result struct {
	Outputs      []expert.ExecutionOutput
	SuccessCount int
	FailureCount int
}

// Executor runs the execution stage.
type Executor struct {
	Transport transport.Transport
	Progress  progress.Sink
}

func (e *Executor) sink() progress.Sink {
	if e.Progress != nil {
		return e.Progress
	}
	return progress.NullSink{}
}

// Run builds one subtask per expert from decision.FinalDecision (truncated
// to decisionContextLimit characters for context) and the original task,
// then calls every expert's worker endpoint concurrently — one goroutine
// per expert, joined before Run returns. A worker failure never aborts the
// stage: it is recorded as a failed ExecutionOutput instead.
func (e *Executor) Run(ctx context.Context, recruitment expert.Recruitment, decision expert.Decision, task string) (Result, error) {
	experts := recruitment.Experts
	outputs := make([]expert.ExecutionOutput, len(experts))

	decisionContext := truncate(decision.FinalDecision, decisionContextLimit)

	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range experts {
		i, ex := i, ex
		g.Go(func() error {
			subtask := fmt.Sprintf(subtaskTemplate, ex.Role, ex.Responsibilities, decisionContext, task)
			out := e.callExpert(gctx, ex, subtask)

			outputs[i] = out
			e.sink().Emit(progress.Event{
				Type:  progress.TypeExecutionResult,
				Stage: "execution",
				Data: map[string]any{
					"expert":         out.Expert,
					"success":        out.Success,
					"output_preview": truncate(out.Output, 200),
					"completed":      completed.Add(1),
					"total":          len(experts),
				},
			})
			return nil
		})
	}
	// g.Wait never returns an error: callExpert absorbs every failure into
	// a failed ExecutionOutput rather than propagating it.
	_ = g.Wait()

	result := Result{Outputs: outputs}
	for _, o := range outputs {
		if o.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}
	return result, nil
}

func (e *Executor) callExpert(ctx context.Context, ex expert.Expert, subtask string) expert.ExecutionOutput {
	resp, err := e.Transport.Call(ctx, ex.Endpoint, transport.Request{
		Subtask:        subtask,
		AgentBRole:     string(ex.Role),
		AgentBContract: ex.Contract,
	})
	if err != nil {
		return expert.ExecutionOutput{
			Expert:  ex.Role,
			Index:   ex.Index,
			Subtask: subtask,
			Output:  fmt.Sprintf("Execution failed: %v", err),
			Success: false,
		}
	}
	return expert.ExecutionOutput{
		Expert:  ex.Role,
		Index:   ex.Index,
		Subtask: subtask,
		Output:  resp.Output,
		Success: true,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

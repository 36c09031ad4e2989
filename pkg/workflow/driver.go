package workflow

import (
	"context"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/config"
	"github.com/codeready-toolchain/agentverse/pkg/deliberation"
	"github.com/codeready-toolchain/agentverse/pkg/evaluation"
	"github.com/codeready-toolchain/agentverse/pkg/execution"
	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/codeready-toolchain/agentverse/pkg/recruiter"
	"github.com/codeready-toolchain/agentverse/pkg/synthesis"
	"github.com/codeready-toolchain/agentverse/pkg/tracing"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
)

// Driver runs the Recruit -> Deliberate -> Execute -> Evaluate loop,
// terminating on threshold acceptance or iteration-budget exhaustion, then
// synthesizing a final answer.
type Driver struct {
	Config    *config.Config
	Transport transport.Transport
	LLM       llmclient.Client
	Progress  progress.Sink
	Tracer    tracing.Tracer
}

func (d *Driver) sink() progress.Sink {
	if d.Progress != nil {
		return d.Progress
	}
	return progress.NullSink{}
}

func (d *Driver) tracer() tracing.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return tracing.NullTracer{}
}

// Run executes one workflow end to end for task, tagged with taskID.
// The ID is immutable from creation and tags every child operation.
func (d *Driver) Run(ctx context.Context, taskID, task string) (*WorkflowState, error) {
	ctx, end := d.tracer().Start(ctx, "workflow.run", map[string]any{"task_id": taskID})
	var runErr error
	defer func() { end(runErr) }()

	state := &WorkflowState{
		TaskID:           taskID,
		OriginalTask:     task,
		MaxIterations:    d.Config.MaxWorkflowIterations,
		SuccessThreshold: clamp(d.Config.QualityThreshold, 0, 100),
	}
	rec := newRecorder(state, d.sink())

	var feedback string
	for state.Iteration < state.MaxIterations {
		iterStart := time.Now()
		d.sink().Emit(progress.Event{
			Type:      progress.TypeIterationStart,
			Iteration: state.Iteration,
			Data: map[string]any{
				"max_iterations": state.MaxIterations,
			},
		})

		recruitment, err := d.recruit(ctx, rec, task, feedback)
		if err != nil {
			// ErrNoWorkerURLs is the one recruiter failure that is fatal
			// for the whole workflow.
			runErr = err
			return nil, err
		}
		state.Recruitment = &recruitment

		decision := d.deliberate(ctx, rec, recruitment, task)
		state.Decision = &decision

		execResult := d.execute(ctx, rec, recruitment, decision, task)
		state.Execution = &execResult

		eval := d.evaluate(ctx, rec, state, execResult)
		state.Evaluation = &eval

		state.IterationHistory = append(state.IterationHistory, buildIterationRecord(state, time.Since(iterStart).Seconds()))
		d.sink().Emit(progress.Event{
			Type: progress.TypeIterationComplete,
			Data: map[string]any{"iteration_history": state.IterationHistory},
		})

		if !eval.ShouldIterate {
			break
		}
		feedback = eval.Feedback
		state.Iteration++
	}

	d.sink().Emit(progress.Event{Type: progress.TypeStageStart, Stage: "synthesis", Iteration: state.Iteration})
	final, err := d.synthesize(ctx, rec, state)
	if err != nil {
		// A synthesis failure must not fail the whole workflow; fall back
		// to the decision text already on hand.
		final = fallbackFinalOutput(state)
	}
	state.FinalOutput = final
	state.Completed = true
	d.sink().Emit(progress.Event{Type: progress.TypeStageComplete, Stage: "synthesis", Iteration: state.Iteration})

	return state, nil
}

func (d *Driver) recruit(ctx context.Context, rec *recorder, task, feedback string) (expert.Recruitment, error) {
	ctx, end := d.tracer().Start(ctx, "workflow.recruit", nil)
	var stageErr error
	defer func() { end(stageErr) }()

	d.sink().Emit(progress.Event{Type: progress.TypeStageStart, Stage: "recruitment"})
	defer d.sink().Emit(progress.Event{Type: progress.TypeStageComplete, Stage: "recruitment"})

	llm := &recordingLLMClient{inner: d.LLM, rec: rec, stage: "recruitment", label: "recruit_experts", endpoint: d.Config.LLMURL}
	r := &recruiter.Recruiter{
		LLM:        llm,
		WorkerURLs: d.Config.WorkerURLs,
		MaxWorkers: d.Config.MaxWorkers,
	}
	recruitment, err := r.Run(ctx, task, feedback)
	stageErr = err
	return recruitment, err
}

func (d *Driver) deliberate(ctx context.Context, rec *recorder, recruitment expert.Recruitment, task string) expert.Decision {
	ctx, end := d.tracer().Start(ctx, "workflow.deliberate", map[string]any{"topology": recruitment.Topology})
	defer func() { end(nil) }()

	d.sink().Emit(progress.Event{Type: progress.TypeStageStart, Stage: "decision"})
	defer d.sink().Emit(progress.Event{Type: progress.TypeStageComplete, Stage: "decision"})

	tr := newRecordingTransport(d.Transport, rec, "decision", recruitment.Experts)

	if recruitment.Topology == expert.TopologyVertical {
		v := &deliberation.Vertical{
			Transport: tr,
			MaxIters:  d.Config.MaxVerticalIters,
			Progress:  d.sink(),
		}
		decision, _ := v.Run(ctx, recruitment, task)
		return decision
	}

	llm := &recordingLLMClient{inner: d.LLM, rec: rec, stage: "decision", label: "synthesize_discussion", endpoint: d.Config.LLMURL}
	h := &deliberation.Horizontal{
		Transport: tr,
		LLM:       llm,
		MaxRounds: d.Config.MaxRounds,
		Progress:  d.sink(),
	}
	decision, _ := h.Run(ctx, recruitment, task)
	return decision
}

func (d *Driver) execute(ctx context.Context, rec *recorder, recruitment expert.Recruitment, decision expert.Decision, task string) execution.Result {
	ctx, end := d.tracer().Start(ctx, "workflow.execute", map[string]any{"expert_count": len(recruitment.Experts)})
	defer func() { end(nil) }()

	d.sink().Emit(progress.Event{
		Type:  progress.TypeStageStart,
		Stage: "execution",
		Data:  map[string]any{"expert_count": len(recruitment.Experts)},
	})
	defer d.sink().Emit(progress.Event{Type: progress.TypeStageComplete, Stage: "execution"})

	tr := newRecordingTransport(d.Transport, rec, "execution", recruitment.Experts)
	e := &execution.Executor{Transport: tr, Progress: d.sink()}
	result, _ := e.Run(ctx, recruitment, decision, task)
	return result
}

func (d *Driver) evaluate(ctx context.Context, rec *recorder, state *WorkflowState, execResult execution.Result) expert.Evaluation {
	ctx, end := d.tracer().Start(ctx, "workflow.evaluate", map[string]any{"iteration": state.Iteration})
	defer func() { end(nil) }()

	d.sink().Emit(progress.Event{Type: progress.TypeStageStart, Stage: "evaluation"})
	defer d.sink().Emit(progress.Event{Type: progress.TypeStageComplete, Stage: "evaluation"})

	llm := &recordingLLMClient{inner: d.LLM, rec: rec, stage: "evaluation", label: "evaluate_results", endpoint: d.Config.LLMURL}
	ev := &evaluation.Evaluator{LLM: llm}
	result, _ := ev.Run(ctx, evaluation.Input{
		Task:             state.OriginalTask,
		Iteration:        state.Iteration,
		MaxIterations:    state.MaxIterations,
		SuccessThreshold: state.SuccessThreshold,
	}, execResult)
	return result
}

func (d *Driver) synthesize(ctx context.Context, rec *recorder, state *WorkflowState) (string, error) {
	ctx, end := d.tracer().Start(ctx, "workflow.synthesize", nil)
	var stageErr error
	defer func() { end(stageErr) }()

	llm := &recordingLLMClient{inner: d.LLM, rec: rec, stage: "synthesis", label: "final_output", endpoint: d.Config.LLMURL}
	s := &synthesis.Synthesizer{LLM: llm, MaxTokens: 4096}

	history := make([]synthesis.IterationSummary, len(state.IterationHistory))
	for i, h := range state.IterationHistory {
		history[i] = synthesis.IterationSummary{
			Iteration: h.Iteration,
			Score:     h.Evaluation.Score,
			Experts:   h.Recruitment.Experts,
		}
	}

	out, err := s.Run(ctx, synthesis.Input{
		Task:       state.OriginalTask,
		History:    history,
		Execution:  state.Execution,
		Evaluation: state.Evaluation,
	})
	stageErr = err
	return out, err
}

func fallbackFinalOutput(state *WorkflowState) string {
	if state.Decision != nil && state.Decision.FinalDecision != "" {
		return state.Decision.FinalDecision
	}
	return "Synthesis unavailable; see iteration history for stage-by-stage results."
}

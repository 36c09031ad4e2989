// Package workflow implements the workflow driver: it owns WorkflowState,
// runs the Recruit->Deliberate->Execute->Evaluate stage loop, enforces the
// iteration and threshold budgets, and calls the synthesizer once the loop
// exits.
package workflow

import (
	"github.com/codeready-toolchain/agentverse/pkg/execution"
	"github.com/codeready-toolchain/agentverse/pkg/expert"
)

// LLMRequestRecord is one entry in a workflow's append-only LLM call log.
// Seq is dense and monotonic, 1..N with no gaps.
type LLMRequestRecord struct {
	Seq             int
	Iteration       int
	Stage           string
	Label           string
	Source          string // "orchestrator" or "worker-<k>"
	Prompt          string
	Response        string
	Endpoint        string
	StartTimeUTC    string
	RequestID       string
	DurationSeconds float64
	AgentRole       string
	Round           int // 0 when not applicable
	TraceMetadata   any
	BackendMetadata any
}

// RecruitmentSummary is the recruitment slice of one IterationRecord.
type RecruitmentSummary struct {
	Experts   []expert.Role
	Structure expert.Topology
}

// DecisionSummary is the decision slice of one IterationRecord.
type DecisionSummary struct {
	ConsensusReached bool
	Rounds           int
}

// ExecutionSummary is the execution slice of one IterationRecord.
type ExecutionSummary struct {
	SuccessCount int
	FailureCount int
}

// EvaluationSummary is the evaluation slice of one IterationRecord.
type EvaluationSummary struct {
	GoalAchieved   bool
	Score          int
	Criteria       *expert.Criteria
	Rationale      string
	Feedback       string
	MissingAspects []string
}

// IterationRecord is one completed pass of the stage loop, kept for
// postmortem inspection and fed into the final synthesis prompt.
type IterationRecord struct {
	Iteration       int
	DurationSeconds float64
	Recruitment     RecruitmentSummary
	Decision        DecisionSummary
	Execution       ExecutionSummary
	Evaluation      EvaluationSummary
}

// WorkflowState is mutated only by the Driver (single writer per workflow)
// and frozen once Completed is true.
type WorkflowState struct {
	TaskID           string
	OriginalTask     string
	Iteration        int // 0-based
	MaxIterations    int
	SuccessThreshold int // 0..100

	Recruitment *expert.Recruitment
	Decision    *expert.Decision
	Execution   *execution.Result
	Evaluation  *expert.Evaluation

	IterationHistory []IterationRecord
	LLMRequests      []LLMRequestRecord

	FinalOutput string
	Completed   bool
}

func buildIterationRecord(state *WorkflowState, durationSeconds float64) IterationRecord {
	rec := IterationRecord{Iteration: state.Iteration, DurationSeconds: durationSeconds}

	if state.Recruitment != nil {
		roles := make([]expert.Role, len(state.Recruitment.Experts))
		for i, e := range state.Recruitment.Experts {
			roles[i] = e.Role
		}
		rec.Recruitment = RecruitmentSummary{Experts: roles, Structure: state.Recruitment.Topology}
	}
	if state.Decision != nil {
		rec.Decision = DecisionSummary{
			ConsensusReached: state.Decision.ConsensusReached,
			Rounds:           state.Decision.RoundCount(),
		}
	}
	if state.Execution != nil {
		rec.Execution = ExecutionSummary{
			SuccessCount: state.Execution.SuccessCount,
			FailureCount: state.Execution.FailureCount,
		}
	}
	if state.Evaluation != nil {
		rec.Evaluation = EvaluationSummary{
			GoalAchieved:   state.Evaluation.GoalAchieved,
			Score:          state.Evaluation.Score,
			Criteria:       state.Evaluation.Criteria,
			Rationale:      state.Evaluation.Rationale,
			Feedback:       state.Evaluation.Feedback,
			MissingAspects: state.Evaluation.MissingAspects,
		}
	}
	return rec
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package expert holds the shared value types passed between the stages of
// the orchestration workflow (recruitment, deliberation, execution,
// evaluation). None of the types here own behavior; they are the common
// vocabulary every stage package depends on without import cycles.
package expert

import "fmt"

// Role identifies the kind of expert recruited for a workflow.
type Role string

// Supported expert roles.
const (
	RolePlanner    Role = "planner"
	RoleResearcher Role = "researcher"
	RoleExecutor   Role = "executor"
	RoleCritic     Role = "critic"
	RoleSummarizer Role = "summarizer"
)

var validRoles = map[Role]bool{
	RolePlanner:    true,
	RoleResearcher: true,
	RoleExecutor:   true,
	RoleCritic:     true,
	RoleSummarizer: true,
}

// ParseRole normalizes a free-form role string from model output. Unknown or
// empty values fall back to RoleExecutor, matching the recruiter's default
// expert.
func ParseRole(s string) Role {
	r := Role(toLower(s))
	if validRoles[r] {
		return r
	}
	return RoleExecutor
}

// Topology is the communication structure chosen for deliberation.
type Topology string

// Supported topologies.
const (
	TopologyHorizontal Topology = "horizontal"
	TopologyVertical   Topology = "vertical"
)

// ParseTopology case-insensitively matches a topology string, defaulting to
// horizontal on any mismatch per the recruiter's interpretation rules.
func ParseTopology(s string) Topology {
	switch Topology(toLower(s)) {
	case TopologyVertical:
		return TopologyVertical
	default:
		return TopologyHorizontal
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Sentinels that must be preserved verbatim in prompts sent to expert
// workers, and matched verbatim against their responses.
const (
	// ConsensusSentinel terminates a horizontal discussion round.
	ConsensusSentinel = "[CONSENSUS]"
	// ApprovedSentinel terminates a vertical reviewer iteration.
	ApprovedSentinel = "[APPROVED]"
)

// Expert is a recruited agent bound to a worker endpoint. Immutable once
// recruited.
type Expert struct {
	Role             Role
	Responsibilities string
	Contract         string
	Endpoint         string
	Index            int
}

// Recruitment is the result of the recruitment stage.
type Recruitment struct {
	Experts        []Expert
	Topology       Topology
	ExecutionOrder []string
	Reasoning      string
}

// DiscussionResponse is one expert's contribution to a horizontal round.
type DiscussionResponse struct {
	Expert    Role
	Index     int
	Response  string
	Consensus bool
}

// DiscussionRound is one round of horizontal deliberation.
type DiscussionRound struct {
	RoundNum  int
	Responses []DiscussionResponse
}

// ReviewerResponse is one reviewer's critique within a vertical iteration.
type ReviewerResponse struct {
	ReviewerRole Role
	Critique     string
	Approved     bool
}

// SolverIteration is one iteration of vertical deliberation.
type SolverIteration struct {
	Iteration         int
	Proposal          string
	ReviewerResponses []ReviewerResponse
	AllApproved       bool
}

// Decision is the result of the deliberation stage.
type Decision struct {
	FinalDecision    string
	StructureUsed    Topology
	ConsensusReached bool
	HorizontalRounds []DiscussionRound // populated when StructureUsed == TopologyHorizontal
	VerticalRounds   []SolverIteration // populated when StructureUsed == TopologyVertical
	SolverRole       Role              // zero value when no solver (horizontal)
	ReviewerRoles    []Role
}

// RoundCount reports how many discussion rounds or solver iterations were
// recorded, regardless of topology.
func (d Decision) RoundCount() int {
	if d.StructureUsed == TopologyVertical {
		return len(d.VerticalRounds)
	}
	return len(d.HorizontalRounds)
}

// ExecutionOutput is one expert's result from the execution stage.
type ExecutionOutput struct {
	Expert  Role
	Index   int
	Subtask string
	Output  string
	Success bool
}

// Criteria is the per-dimension score breakdown an evaluator may return.
type Criteria struct {
	Completeness  int
	Correctness   int
	Clarity       int
	Relevance     int
	Actionability int
}

// Evaluation is the result of the evaluation stage.
type Evaluation struct {
	GoalAchieved   bool
	Score          int
	Criteria       *Criteria
	Rationale      string
	Feedback       string
	MissingAspects []string
	ShouldIterate  bool
}

func (e Expert) String() string {
	return fmt.Sprintf("%s@%s", e.Role, e.Endpoint)
}

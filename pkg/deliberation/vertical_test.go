package deliberation_test

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/agentverse/pkg/deliberation"
	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertical_PlannerIsSolverAndStopsOnApproval(t *testing.T) {
	tr := &fakeTransport{Outputs: []string{
		"here is my proposal",                   // solver
		"looks good " + expert.ApprovedSentinel, // reviewer
	}}
	v := &deliberation.Vertical{Transport: tr, MaxIters: 3}
	rec := expert.Recruitment{Experts: []expert.Expert{
		{Role: expert.RoleCritic, Endpoint: "http://w1"},
		{Role: expert.RolePlanner, Endpoint: "http://w0"},
	}}

	decision, err := v.Run(context.Background(), rec, "design the API")
	require.NoError(t, err)
	assert.Equal(t, expert.RolePlanner, decision.SolverRole)
	assert.True(t, decision.ConsensusReached)
	assert.Len(t, decision.VerticalRounds, 1)
}

func TestVertical_NoReviewersAutoApproves(t *testing.T) {
	tr := &fakeTransport{Output: "solo proposal"}
	v := &deliberation.Vertical{Transport: tr, MaxIters: 3}
	rec := expert.Recruitment{Experts: []expert.Expert{
		{Role: expert.RoleExecutor, Endpoint: "http://w0"},
	}}

	decision, err := v.Run(context.Background(), rec, "task")
	require.NoError(t, err)
	assert.True(t, decision.ConsensusReached)
	assert.Len(t, decision.VerticalRounds, 1)
}

func TestVertical_NoExpertsReturnsNoSolverDecision(t *testing.T) {
	v := &deliberation.Vertical{Transport: &fakeTransport{}, MaxIters: 3}
	decision, err := v.Run(context.Background(), expert.Recruitment{}, "task")
	require.NoError(t, err)
	assert.Equal(t, "No solver agent available", decision.FinalDecision)
}

func TestVertical_IteratesUntilApprovedOrMax(t *testing.T) {
	tr := &fakeTransport{Output: "never good enough"}
	v := &deliberation.Vertical{Transport: tr, MaxIters: 2}
	rec := expert.Recruitment{Experts: []expert.Expert{
		{Role: expert.RolePlanner, Endpoint: "http://w0"},
		{Role: expert.RoleCritic, Endpoint: "http://w1"},
	}}

	decision, err := v.Run(context.Background(), rec, "task")
	require.NoError(t, err)
	assert.False(t, decision.ConsensusReached)
	assert.Len(t, decision.VerticalRounds, 2)
}

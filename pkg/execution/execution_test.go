package execution_test

import (
	"context"
	"errors"
	"testing"

	"github.com/codeready-toolchain/agentverse/pkg/execution"
	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	fail map[string]bool
}

func (f *fakeTransport) Call(_ context.Context, endpoint string, req transport.Request) (transport.Response, error) {
	if f.fail[endpoint] {
		return transport.Response{}, errors.New("boom")
	}
	return transport.Response{Output: "done: " + req.AgentBRole}, nil
}

func TestExecutor_AllSucceed(t *testing.T) {
	e := &execution.Executor{Transport: &fakeTransport{}}
	rec := expert.Recruitment{Experts: []expert.Expert{
		{Role: expert.RolePlanner, Endpoint: "http://w0", Index: 0},
		{Role: expert.RoleExecutor, Endpoint: "http://w1", Index: 1},
	}}
	decision := expert.Decision{FinalDecision: "plan the thing"}

	result, err := e.Run(context.Background(), rec, decision, "task")
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	assert.Len(t, result.Outputs, 2)
	assert.Equal(t, result.SuccessCount+result.FailureCount, len(rec.Experts))
}

func TestExecutor_PartialFailureIsRecordedNotFatal(t *testing.T) {
	e := &execution.Executor{Transport: &fakeTransport{fail: map[string]bool{"http://w1": true}}}
	rec := expert.Recruitment{Experts: []expert.Expert{
		{Role: expert.RolePlanner, Endpoint: "http://w0", Index: 0},
		{Role: expert.RoleCritic, Endpoint: "http://w1", Index: 1},
		{Role: expert.RoleExecutor, Endpoint: "http://w2", Index: 2},
	}}
	decision := expert.Decision{FinalDecision: "plan"}

	result, err := e.Run(context.Background(), rec, decision, "task")
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, len(rec.Experts), result.SuccessCount+result.FailureCount)

	for _, o := range result.Outputs {
		if o.Expert == expert.RoleCritic {
			assert.False(t, o.Success)
			assert.Contains(t, o.Output, "Execution failed")
		}
	}
}

func TestExecutor_TruncatesDecisionContext(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'x'
	}
	e := &execution.Executor{Transport: &fakeTransport{}}
	rec := expert.Recruitment{Experts: []expert.Expert{{Role: expert.RoleExecutor, Endpoint: "http://w0"}}}
	decision := expert.Decision{FinalDecision: string(long)}

	result, err := e.Run(context.Background(), rec, decision, "task")
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.Contains(t, result.Outputs[0].Subtask, "...")
}

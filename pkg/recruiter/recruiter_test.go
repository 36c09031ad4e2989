package recruiter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/codeready-toolchain/agentverse/pkg/expert"
	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
	"github.com/codeready-toolchain/agentverse/pkg/recruiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	output string
	err    error
}

func (f fakeLLM) Generate(_ context.Context, _ llmclient.GenerateInput) (string, *llmclient.Meta, error) {
	return f.output, nil, f.err
}

func TestRecruiter_NoWorkerURLs(t *testing.T) {
	r := &recruiter.Recruiter{LLM: fakeLLM{output: "{}"}}
	_, err := r.Run(context.Background(), "do a thing", "")
	require.ErrorIs(t, err, recruiter.ErrNoWorkerURLs)
}

func TestRecruiter_RoundRobinAssignment(t *testing.T) {
	llm := fakeLLM{output: `{
		"experts": [
			{"role": "planner", "responsibilities": "plan"},
			{"role": "critic", "responsibilities": "review"},
			{"role": "executor", "responsibilities": "do"}
		],
		"communication_structure": "vertical"
	}`}
	r := &recruiter.Recruiter{
		LLM:        llm,
		WorkerURLs: []string{"http://w0", "http://w1"},
		MaxWorkers: 5,
	}
	rec, err := r.Run(context.Background(), "do a thing", "")
	require.NoError(t, err)
	require.Len(t, rec.Experts, 3)
	assert.Equal(t, "http://w0", rec.Experts[0].Endpoint)
	assert.Equal(t, "http://w1", rec.Experts[1].Endpoint)
	assert.Equal(t, "http://w0", rec.Experts[2].Endpoint)
	assert.Equal(t, expert.TopologyVertical, rec.Topology)
}

func TestRecruiter_MaxWorkersBound(t *testing.T) {
	llm := fakeLLM{output: `{"experts": [
		{"role": "planner"}, {"role": "critic"}, {"role": "executor"}, {"role": "researcher"}
	]}`}
	r := &recruiter.Recruiter{LLM: llm, WorkerURLs: []string{"http://w0"}, MaxWorkers: 2}
	rec, err := r.Run(context.Background(), "task", "")
	require.NoError(t, err)
	assert.Len(t, rec.Experts, 2)
}

func TestRecruiter_DefaultExpertWhenNoneParsed(t *testing.T) {
	r := &recruiter.Recruiter{LLM: fakeLLM{output: "not json"}, WorkerURLs: []string{"http://w0"}}
	rec, err := r.Run(context.Background(), "task", "")
	require.NoError(t, err)
	require.Len(t, rec.Experts, 1)
	assert.Equal(t, expert.RoleExecutor, rec.Experts[0].Role)
}

func TestRecruiter_LLMFailureFallsBackToDefault(t *testing.T) {
	r := &recruiter.Recruiter{LLM: fakeLLM{err: errors.New("down")}, WorkerURLs: []string{"http://w0"}}
	rec, err := r.Run(context.Background(), "task", "")
	require.NoError(t, err)
	require.Len(t, rec.Experts, 1)
}

package deliberation_test

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/agentverse/pkg/llmclient"
	"github.com/codeready-toolchain/agentverse/pkg/transport"
)

// fakeTransport returns canned outputs per call, round-robin over Outputs,
// or always Output if Outputs is empty.
type fakeTransport struct {
	Output  string
	Outputs []string
	calls   int
}

func (f *fakeTransport) Call(_ context.Context, _ string, req transport.Request) (transport.Response, error) {
	out := f.Output
	if len(f.Outputs) > 0 {
		out = f.Outputs[f.calls%len(f.Outputs)]
	}
	f.calls++
	return transport.Response{Output: out, TaskID: fmt.Sprintf("t%d", f.calls), AgentID: req.AgentBRole}, nil
}

type fakeLLM struct {
	Output string
}

func (f fakeLLM) Generate(_ context.Context, _ llmclient.GenerateInput) (string, *llmclient.Meta, error) {
	return f.Output, nil, nil
}

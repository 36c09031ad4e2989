package progress_test

import (
	"testing"

	"github.com/codeready-toolchain/agentverse/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink_DeliversEvents(t *testing.T) {
	sink := progress.NewChannelSink(4)
	sink.Emit(progress.Event{Type: progress.TypeStageStart, Stage: "recruitment"})
	sink.Emit(progress.Event{Type: progress.TypeStageComplete, Stage: "recruitment"})

	e := <-sink.Events()
	require.Equal(t, progress.TypeStageStart, e.Type)
	e = <-sink.Events()
	require.Equal(t, progress.TypeStageComplete, e.Type)
}

func TestChannelSink_DropsWhenFullInsteadOfBlocking(t *testing.T) {
	sink := progress.NewChannelSink(1)
	sink.Emit(progress.Event{Type: progress.TypeStageStart})
	sink.Emit(progress.Event{Type: progress.TypeStageComplete}) // dropped, must not block

	e := <-sink.Events()
	assert.Equal(t, progress.TypeStageStart, e.Type)
	select {
	case e := <-sink.Events():
		t.Fatalf("unexpected buffered event %v", e)
	default:
	}
}

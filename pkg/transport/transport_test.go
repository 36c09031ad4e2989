package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeready-toolchain/agentverse/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Call_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		var req transport.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "do the thing", req.Subtask)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transport.Response{
			TaskID:  "t1",
			AgentID: "a1",
			Output:  "done",
		})
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(5 * time.Second)
	resp, err := tr.Call(context.Background(), srv.URL, transport.Request{Subtask: "do the thing"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Output)
}

func TestHTTPTransport_Call_DefaultsScenario(t *testing.T) {
	var got transport.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(transport.Response{Output: "ok"})
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(5 * time.Second)
	_, err := tr.Call(context.Background(), srv.URL, transport.Request{Subtask: "x"})
	require.NoError(t, err)
	assert.Equal(t, transport.DefaultScenario, got.Scenario)
}

func TestRoundContext(t *testing.T) {
	assert.Equal(t, 0, transport.RoundFrom(context.Background()))
	ctx := transport.WithRound(context.Background(), 2)
	assert.Equal(t, 2, transport.RoundFrom(ctx))
}

func TestHTTPTransport_Call_EmptyEndpoint(t *testing.T) {
	tr := transport.NewHTTPTransport(time.Second)
	_, err := tr.Call(context.Background(), "", transport.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrConfigError)
}

func TestHTTPTransport_Call_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(5 * time.Second)
	_, err := tr.Call(context.Background(), srv.URL, transport.Request{Subtask: "x"})
	require.Error(t, err)
	var remoteErr *transport.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
}

func TestHTTPTransport_Call_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := transport.NewHTTPTransport(5 * time.Millisecond)
	_, err := tr.Call(context.Background(), srv.URL, transport.Request{Subtask: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTimeout)
}

package metrics

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/wire"
)

func TestQueryEmptyReturnsZeroSamples(t *testing.T) {
	a := New(16, zap.NewNop())
	body, err := a.Query()
	require.NoError(t, err)

	var agg Aggregate
	require.NoError(t, json.Unmarshal([]byte(body), &agg))
	assert.Equal(t, 0, agg.SampleCount)
}

func TestCompletedRequestContributesToAggregate(t *testing.T) {
	a := New(16, zap.NewNop())

	a.Record("dispatcher", 1, CheckpointStart)
	a.Record("auth", 1, CheckpointArrive)
	time.Sleep(5 * time.Millisecond)
	a.Record("auth", 1, CheckpointLeave)
	a.Record("dispatcher", 1, CheckpointStreamClose)

	// Give the actor's single goroutine a beat to process the four
	// sequential Records before querying.
	time.Sleep(10 * time.Millisecond)

	body, err := a.Query()
	require.NoError(t, err)

	var agg Aggregate
	require.NoError(t, json.Unmarshal([]byte(body), &agg))
	assert.Equal(t, 1, agg.SampleCount)
	assert.Greater(t, agg.AvgActorLatencyMS["auth"], 0.0)
}

func TestIncompleteRequestExcludedFromAggregate(t *testing.T) {
	a := New(16, zap.NewNop())

	a.Record("dispatcher", 1, CheckpointStart)
	a.Record("auth", 1, CheckpointArrive)
	// No Leave, no StreamClose: this request never completes.
	time.Sleep(10 * time.Millisecond)

	body, err := a.Query()
	require.NoError(t, err)

	var agg Aggregate
	require.NoError(t, json.Unmarshal([]byte(body), &agg))
	assert.Equal(t, 0, agg.SampleCount)
}

func TestQueryToConnectionWritesJSONResponse(t *testing.T) {
	a := New(16, zap.NewNop())
	server, client := net.Pipe()

	done := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(client)
		line, _ := reader.ReadString('\n')
		done <- line
	}()

	a.QueryToConnection(&wire.Envelope{Conn: server})
	select {
	case line := <-done:
		assert.Contains(t, line, "200")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client.Close()
}

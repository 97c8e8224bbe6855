package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueuedPublisher builds a publisher with no broker behind it, for
// exercising the queueing side alone.
func newQueuedPublisher(size int) *Publisher {
	return &Publisher{
		prefix: "saber/test",
		queue:  make(chan message, size),
		done:   make(chan struct{}),
	}
}

func TestTransitionPayload(t *testing.T) {
	p := newQueuedPublisher(4)
	p.Transition("power", "SLEEPING", "WAKING")

	m := <-p.queue
	assert.Equal(t, "saber/test/transition", m.topic)

	var got transitionPayload
	require.NoError(t, json.Unmarshal(m.payload, &got))
	assert.Equal(t, "power", got.Kind)
	assert.Equal(t, "SLEEPING", got.From)
	assert.Equal(t, "WAKING", got.To)
	assert.False(t, got.At.IsZero())
}

func TestStatusPayload(t *testing.T) {
	p := newQueuedPublisher(4)
	p.Status("ACTIVE", "SWING", 3.87)

	m := <-p.queue
	assert.Equal(t, "saber/test/status", m.topic)

	var got statusPayload
	require.NoError(t, json.Unmarshal(m.payload, &got))
	assert.Equal(t, "ACTIVE", got.PowerState)
	assert.Equal(t, "SWING", got.Mode)
	assert.Equal(t, 3.87, got.BatteryVoltage)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	p := newQueuedPublisher(1)
	p.Transition("power", "A", "B")
	// The queue now holds one message; further sends must return
	// immediately without blocking the tick loop.
	p.Transition("power", "B", "C")
	p.Transition("power", "C", "D")

	m := <-p.queue
	var got transitionPayload
	require.NoError(t, json.Unmarshal(m.payload, &got))
	assert.Equal(t, "B", got.To, "the first message survives, later ones are dropped")

	select {
	case <-p.queue:
		t.Fatal("dropped messages must not appear in the queue")
	default:
	}
}

package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionBusDeliversToSubscriber(t *testing.T) {
	bus := NewCompletionBus()
	ch := bus.Subscribe("task-1")

	bus.Signal(Completion{TaskID: "task-1", Success: true, TotalLanguages: 2})

	select {
	case c := <-ch:
		assert.True(t, c.Success)
		assert.Equal(t, 2, c.TotalLanguages)
	default:
		t.Fatal("expected a buffered completion")
	}
}

func TestCompletionBusSharesChannelPerTask(t *testing.T) {
	bus := NewCompletionBus()
	first := bus.Subscribe("task-1")
	second := bus.Subscribe("task-1")

	bus.Signal(Completion{TaskID: "task-1"})

	require.Len(t, first, 1)
	// One channel, one message: the second handle reads the same buffer.
	assert.Equal(t, (<-chan Completion)(first), second)
}

func TestCompletionBusDropsUnsubscribedSignals(t *testing.T) {
	bus := NewCompletionBus()

	// Nobody is waiting yet; the signal must not block or panic.
	bus.Signal(Completion{TaskID: "task-1"})

	ch := bus.Subscribe("task-1")
	assert.Empty(t, ch)

	bus.Unsubscribe("task-1")
	bus.Signal(Completion{TaskID: "task-1"})

	later := bus.Subscribe("task-1")
	assert.Empty(t, later)
}

func TestCompletionBusNeverBlocksOnDuplicates(t *testing.T) {
	bus := NewCompletionBus()
	ch := bus.Subscribe("task-1")

	bus.Signal(Completion{TaskID: "task-1", Success: true})
	bus.Signal(Completion{TaskID: "task-1", Success: false})

	c := <-ch
	assert.True(t, c.Success)
	assert.Empty(t, ch)
}

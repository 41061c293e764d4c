package tasks

import "sync"

// Completion is the message that tells a waiting coordinator all fanned-out
// work for a task has resolved.
type Completion struct {
	TaskID             string
	Success            bool
	ErrorMessage       string
	CompletedLanguages int
	FailedLanguages    int
	TotalLanguages     int
}

// CompletionBus routes completion signals to waiters keyed by task id.
// A subscription must exist before work is dispatched so a fast worker
// cannot signal into the void; signals for tasks nobody waits on are
// dropped, which makes late signals after a timeout harmless.
type CompletionBus struct {
	mu      sync.Mutex
	waiters map[string]chan Completion
}

func NewCompletionBus() *CompletionBus {
	return &CompletionBus{
		waiters: make(map[string]chan Completion),
	}
}

// Subscribe returns the completion channel for the task, creating it if
// needed. Repeated calls for the same task share one channel, so a
// retranslation while a wait is active does not split the signal.
func (b *CompletionBus) Subscribe(taskID string) <-chan Completion {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.waiters[taskID]
	if !ok {
		ch = make(chan Completion, 1)
		b.waiters[taskID] = ch
	}
	return ch
}

// Unsubscribe drops the task's channel. Signals arriving afterwards are
// discarded.
func (b *CompletionBus) Unsubscribe(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, taskID)
}

// Signal delivers a completion to the task's waiter without blocking. The
// channel is buffered for one message; a duplicate emission while the first
// is still undelivered is dropped.
func (b *CompletionBus) Signal(c Completion) {
	b.mu.Lock()
	ch, ok := b.waiters[c.TaskID]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- c:
	default:
	}
}

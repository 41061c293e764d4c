package tasks

import (
	"context"
	"fmt"
	"time"
)

// Evaluator decides, after every worker finishes, whether a task has reached
// terminal readiness, and emits the completion signal when it has. It always
// re-reads the freshly recomputed counters instead of trusting whatever the
// worker observed.
type Evaluator struct {
	store       Store
	bus         *CompletionBus
	settleDelay time.Duration
}

func NewEvaluator(store Store, bus *CompletionBus, settleDelay time.Duration) *Evaluator {
	return &Evaluator{
		store:       store,
		bus:         bus,
		settleDelay: settleDelay,
	}
}

// Evaluate re-reads the task after a short settling delay and signals
// completion when every language has reported a terminal outcome. Tasks
// already finalized are left alone, which keeps re-entrant evaluations and
// late worker updates harmless.
func (e *Evaluator) Evaluate(ctx context.Context, taskID string) error {
	if e.settleDelay > 0 {
		timer := time.NewTimer(e.settleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if task.CompletedLanguages+task.FailedLanguages < task.TotalLanguages {
		return nil
	}

	completion := Completion{
		TaskID:             task.ID,
		Success:            task.FailedLanguages == 0,
		CompletedLanguages: task.CompletedLanguages,
		FailedLanguages:    task.FailedLanguages,
		TotalLanguages:     task.TotalLanguages,
	}
	if task.FailedLanguages > 0 {
		completion.ErrorMessage = fmt.Sprintf("%d languages failed", task.FailedLanguages)
	}
	e.bus.Signal(completion)
	return nil
}

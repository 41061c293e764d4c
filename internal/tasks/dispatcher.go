package tasks

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MimeLyc/email-template-translator/pkg/log"
)

// Dispatcher runs work items asynchronously under a global admission limit.
// The limit respects collaborator rate limits across all tasks; it is not a
// per-task lock. Infrastructure failures are retried a bounded number of
// times with growing backoff; when retries are exhausted the item is
// recorded as a failed outcome so its task still converges.
type Dispatcher struct {
	worker  *Worker
	sem     *semaphore.Weighted
	retries int
	backoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(worker *Worker, concurrency, retries int, backoff time.Duration) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if retries < 0 {
		retries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		worker:  worker,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		retries: retries,
		backoff: backoff,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch schedules one worker invocation and returns immediately.
func (d *Dispatcher) Dispatch(item WorkItem) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		d.run(item)
	}()
}

func (d *Dispatcher) run(item WorkItem) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			if !d.sleep(d.backoff * time.Duration(attempt)) {
				return
			}
			log.Warn("Retrying task %s language %s (attempt %d/%d): %v",
				item.TaskID, item.LanguageCode, attempt, d.retries, lastErr)
		}
		lastErr = d.worker.Run(d.ctx, item)
		if lastErr == nil {
			return
		}
	}

	log.Error("Giving up on task %s language %s after %d retries: %v",
		item.TaskID, item.LanguageCode, d.retries, lastErr)
	d.worker.MarkExhausted(d.ctx, item, lastErr)
}

func (d *Dispatcher) sleep(duration time.Duration) bool {
	if duration <= 0 {
		return true
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-d.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stop aborts pending admissions and waits for in-flight workers to return.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

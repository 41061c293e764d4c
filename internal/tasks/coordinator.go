package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/email-template-translator/pkg/log"
)

// minRetranslateReasonLen is the minimum length of reviewer feedback; a
// reason shorter than this carries no instruction worth re-running an
// attempt for.
const minRetranslateReasonLen = 5

// StartRequest is a client request to translate one template version into a
// set of target languages.
type StartRequest struct {
	TemplateID        string   `json:"template_id"`
	TemplateName      string   `json:"template_name"`
	TemplateVersionID string   `json:"template_version_id"`
	HTMLContent       string   `json:"html_content"`
	Subject           string   `json:"subject"`
	SourceLanguage    string   `json:"source_language"`
	TargetLanguages   []string `json:"target_languages"`
}

// Coordinator owns the task lifecycle: it validates requests, creates the
// task, fans out one work item per language, and finalizes the task exactly
// once when the completion signal arrives or the wait times out. The wait
// state is derivable from the store, so Resume re-establishes it after a
// restart.
type Coordinator struct {
	store      Store
	dispatcher *Dispatcher
	evaluator  *Evaluator
	bus        *CompletionBus
	timeout    time.Duration

	mu      sync.Mutex
	waiting map[string]chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCoordinator(store Store, dispatcher *Dispatcher, evaluator *Evaluator, bus *CompletionBus, timeout time.Duration) *Coordinator {
	return &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		bus:        bus,
		timeout:    timeout,
		waiting:    make(map[string]chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

// StartTranslation creates the task, pre-creates one pending row per target
// language so the originals survive a crash, dispatches the workers and
// arms the completion wait. It returns as soon as the fan-out is dispatched.
func (c *Coordinator) StartTranslation(ctx context.Context, req StartRequest) (*Task, error) {
	targets, err := normalizeTargets(req.SourceLanguage, req.TargetLanguages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.HTMLContent) == "" {
		return nil, NewError(ErrValidation, "html content is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, NewError(ErrValidation, "subject is required")
	}

	task, err := c.store.CreateTask(ctx, req.TemplateID, req.TemplateVersionID, req.TemplateName, req.SourceLanguage, targets)
	if err != nil {
		return nil, err
	}

	items := make([]WorkItem, 0, len(targets))
	for _, lang := range targets {
		row, err := c.store.CreateTranslation(ctx, NewTranslation{
			TaskID:            task.ID,
			TemplateID:        task.TemplateID,
			TemplateVersionID: task.TemplateVersionID,
			LanguageCode:      lang,
			OriginalHTML:      req.HTMLContent,
			OriginalSubject:   req.Subject,
			Status:            TranslationPending,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, WorkItem{
			TaskID:            task.ID,
			TranslationID:     row.ID,
			TemplateID:        task.TemplateID,
			TemplateVersionID: task.TemplateVersionID,
			LanguageCode:      lang,
			SourceLanguage:    task.SourceLanguage,
			HTML:              req.HTMLContent,
			Subject:           req.Subject,
		})
	}

	if err := c.store.UpdateTaskStatus(ctx, task.ID, TaskProcessing, ""); err != nil {
		return nil, err
	}
	task.Status = TaskProcessing

	// Subscribe before dispatching so a fast worker cannot signal first.
	ch := c.bus.Subscribe(task.ID)
	for _, item := range items {
		c.dispatcher.Dispatch(item)
	}
	c.armWait(task.ID, ch)

	log.Info("Task %s started: template %s version %s, %d languages",
		task.ID, task.TemplateID, task.TemplateVersionID, len(targets))
	return task, nil
}

// RequestRetranslation supersedes one terminal translation with a fresh
// attempt carrying the reviewer's reason, reopens the owning task and
// re-arms the completion wait.
func (c *Coordinator) RequestRetranslation(ctx context.Context, translationID, reason string) (*RetranslateResult, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minRetranslateReasonLen {
		return nil, Errorf(ErrValidation, "reason must be at least %d characters", minRetranslateReasonLen)
	}

	res, err := c.store.RequestRetranslate(ctx, translationID, reason)
	if err != nil {
		return nil, err
	}

	ch := c.bus.Subscribe(res.Task.ID)
	c.dispatcher.Dispatch(WorkItem{
		TaskID:            res.Task.ID,
		TranslationID:     res.New.ID,
		TemplateID:        res.New.TemplateID,
		TemplateVersionID: res.New.TemplateVersionID,
		LanguageCode:      res.New.LanguageCode,
		SourceLanguage:    res.Task.SourceLanguage,
		HTML:              res.New.OriginalHTML,
		Subject:           res.New.OriginalSubject,
		Reason:            reason,
	})
	c.armWait(res.Task.ID, ch)

	log.Info("Retranslation of %s (%s) requested: new row %s at version %d",
		translationID, res.New.LanguageCode, res.New.ID, res.New.Version)
	return res, nil
}

// Resume re-engages every unfinished task after a restart: languages whose
// latest row is still live are re-dispatched, and the completion wait is
// re-established. Languages that already settled are covered by a fresh
// evaluation so fully-reported tasks still converge.
func (c *Coordinator) Resume(ctx context.Context) error {
	unfinished, err := c.store.ListUnfinishedTasks(ctx)
	if err != nil {
		return err
	}

	for _, task := range unfinished {
		ch := c.bus.Subscribe(task.ID)
		dispatched := 0
		for _, lang := range task.TargetLanguages {
			row, err := c.store.LatestByTaskAndLanguage(ctx, task.ID, lang)
			if err != nil {
				return err
			}
			if row == nil {
				log.Warn("Task %s has no row for language %s; skipping", task.ID, lang)
				continue
			}
			if row.Status.Terminal() {
				continue
			}
			c.dispatcher.Dispatch(WorkItem{
				TaskID:            task.ID,
				TranslationID:     row.ID,
				TemplateID:        row.TemplateID,
				TemplateVersionID: row.TemplateVersionID,
				LanguageCode:      lang,
				SourceLanguage:    task.SourceLanguage,
				HTML:              row.OriginalHTML,
				Subject:           row.OriginalSubject,
				Reason:            row.RetranslateReason,
			})
			dispatched++
		}
		if dispatched == 0 {
			taskID := task.ID
			go func() {
				if _, err := c.store.SyncTaskCounts(context.Background(), taskID); err != nil {
					log.Error("Resume resync for task %s failed: %v", taskID, err)
					return
				}
				if err := c.evaluator.Evaluate(context.Background(), taskID); err != nil {
					log.Error("Resume evaluation for task %s failed: %v", taskID, err)
				}
			}()
		}
		c.armWait(task.ID, ch)
		log.Info("Resumed task %s: %d languages re-dispatched", task.ID, dispatched)
	}
	return nil
}

// armWait starts the finalization goroutine for a task unless one is
// already running. An active wait shares the task's channel and will see
// the retranslation's signal itself; joining it restarts the timeout so a
// late retranslation gets the full window.
func (c *Coordinator) armWait(taskID string, ch <-chan Completion) {
	c.mu.Lock()
	if extend, ok := c.waiting[taskID]; ok {
		c.mu.Unlock()
		select {
		case extend <- struct{}{}:
		default:
		}
		return
	}
	extend := make(chan struct{}, 1)
	c.waiting[taskID] = extend
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.awaitCompletion(taskID, ch, extend)
		c.mu.Lock()
		delete(c.waiting, taskID)
		c.mu.Unlock()
		c.rearmIfReopened(taskID)
	}()
}

func (c *Coordinator) awaitCompletion(taskID string, ch <-chan Completion, extend <-chan struct{}) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-c.stopCh:
			// Shutdown: the task stays in the store; Resume re-arms the wait.
			return
		case <-extend:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.timeout)
		case <-timer.C:
			c.finalizeTimeout(taskID)
			c.bus.Unsubscribe(taskID)
			return
		case <-ch:
			if c.tryFinalize(taskID) {
				c.bus.Unsubscribe(taskID)
				return
			}
			// Stale signal: a retranslation reopened a slot between the
			// emission and now. Keep waiting.
		}
	}
}

// rearmIfReopened closes the race between a wait finishing and a
// retranslation that joined it at the last instant: if the task is
// non-terminal again once the wait has exited, a fresh wait is armed and
// readiness is re-checked in case the new attempt's signal fell into the
// unsubscribe gap.
func (c *Coordinator) rearmIfReopened(taskID string) {
	select {
	case <-c.stopCh:
		return
	default:
	}

	task, err := c.store.GetTask(context.Background(), taskID)
	if err != nil || task.Status.Terminal() {
		return
	}
	c.armWait(taskID, c.bus.Subscribe(taskID))
	go func() {
		if err := c.evaluator.Evaluate(context.Background(), taskID); err != nil {
			log.Error("Re-evaluation for reopened task %s failed: %v", taskID, err)
		}
	}()
}

// tryFinalize records the terminal outcome if, and only if, the freshly
// read counters still cover every language. Exactly one finalization wins;
// signals raced by a reopened slot are ignored.
func (c *Coordinator) tryFinalize(taskID string) bool {
	task, err := c.store.GetTask(context.Background(), taskID)
	if err != nil {
		log.Error("Cannot load task %s for finalization: %v", taskID, err)
		return false
	}
	if task.Status.Terminal() {
		return true
	}
	if task.CompletedLanguages+task.FailedLanguages < task.TotalLanguages {
		return false
	}

	status := TaskCompleted
	errorMessage := ""
	if task.FailedLanguages > 0 {
		status = TaskFailed
		errorMessage = fmt.Sprintf("%d languages failed", task.FailedLanguages)
	}
	if err := c.store.UpdateTaskStatus(context.Background(), taskID, status, errorMessage); err != nil {
		log.Error("Cannot finalize task %s: %v", taskID, err)
		return false
	}
	log.Info("Task %s finalized: %s (%d completed, %d failed of %d)",
		taskID, status, task.CompletedLanguages, task.FailedLanguages, task.TotalLanguages)
	return true
}

func (c *Coordinator) finalizeTimeout(taskID string) {
	task, err := c.store.GetTask(context.Background(), taskID)
	if err != nil {
		log.Error("Cannot load task %s after timeout: %v", taskID, err)
		return
	}
	if task.Status.Terminal() {
		return
	}
	message := fmt.Sprintf("timed out after %s waiting for translations", c.timeout)
	if err := c.store.UpdateTaskStatus(context.Background(), taskID, TaskFailed, message); err != nil {
		log.Error("Cannot fail timed-out task %s: %v", taskID, err)
		return
	}
	log.Warn("Task %s failed: %s", taskID, message)
}

// Stop abandons active waits without finalizing their tasks and waits for
// the goroutines to return.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// normalizeTargets validates, canonicalizes and deduplicates the requested
// target languages.
func normalizeTargets(source string, targets []string) ([]string, error) {
	if len(targets) == 0 {
		return nil, NewError(ErrValidation, "target languages must not be empty")
	}

	sourceKey := strings.ToLower(strings.TrimSpace(source))
	seen := make(map[string]bool, len(targets))
	ret := make([]string, 0, len(targets))
	for _, raw := range targets {
		code := strings.TrimSpace(raw)
		if code == "" {
			return nil, NewError(ErrValidation, "target language code must not be empty")
		}
		if _, err := language.Parse(code); err != nil {
			return nil, Errorf(ErrValidation, "invalid target language %q", code)
		}
		key := strings.ToLower(code)
		if key == sourceKey {
			return nil, Errorf(ErrValidation, "target language %q equals the source language", code)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		ret = append(ret, code)
	}
	return ret, nil
}

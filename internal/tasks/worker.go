package tasks

import (
	"context"

	"github.com/MimeLyc/email-template-translator/internal/translator"
	"github.com/MimeLyc/email-template-translator/pkg/log"
)

// WorkItem is one dispatched translation attempt for a single language.
// TranslationID is set when the row already exists (retranslation, resume);
// otherwise the worker resolves or creates the row itself.
type WorkItem struct {
	TaskID            string
	TranslationID     string
	TemplateID        string
	TemplateVersionID string
	LanguageCode      string
	SourceLanguage    string
	HTML              string
	Subject           string
	Reason            string
}

// Worker executes exactly one language's translation attempt. A translator
// error is a business outcome recorded on the row; only store failures are
// returned, so the dispatcher retries infrastructure faults and nothing
// else. Safe to re-run with the same item: a live row is reused and a
// terminal row is left untouched.
type Worker struct {
	store      Store
	translator translator.Translator
	evaluator  *Evaluator
}

func NewWorker(store Store, tr translator.Translator, evaluator *Evaluator) *Worker {
	return &Worker{
		store:      store,
		translator: tr,
		evaluator:  evaluator,
	}
}

func (w *Worker) Run(ctx context.Context, item WorkItem) error {
	row, err := w.resolveRow(ctx, item)
	if err != nil {
		return WrapError(err, ErrInfrastructure, "resolve translation row")
	}
	if row == nil {
		// The language already reached a terminal outcome. A prior attempt
		// may have recorded it and then died before settling, so resync and
		// re-evaluate instead of returning early.
		return w.settle(ctx, item.TaskID)
	}

	if err := w.store.MarkTranslationProcessing(ctx, row.ID); err != nil {
		return WrapError(err, ErrInfrastructure, "mark translation processing")
	}

	result, transErr := w.translator.Translate(ctx, translator.Request{
		HTML:              item.HTML,
		Subject:           item.Subject,
		SourceLanguage:    item.SourceLanguage,
		TargetLanguage:    item.LanguageCode,
		ExtraInstructions: item.Reason,
	})
	if transErr != nil {
		log.Error("Translation for task %s language %s failed: %v", item.TaskID, item.LanguageCode, transErr)
		if err := w.store.MarkTranslationFailed(ctx, row.ID, transErr.Error()); err != nil {
			return WrapError(err, ErrInfrastructure, "mark translation failed")
		}
	} else {
		if err := w.store.MarkTranslationCompleted(ctx, row.ID, result.HTML, result.Subject); err != nil {
			return WrapError(err, ErrInfrastructure, "mark translation completed")
		}
		log.Info("Translated task %s language %s (version %d)", item.TaskID, item.LanguageCode, row.Version)
	}

	return w.settle(ctx, item.TaskID)
}

// MarkExhausted records a terminal failure for the item after the dispatcher
// gave up retrying infrastructure faults, so the language still reports in
// and the task can converge.
func (w *Worker) MarkExhausted(ctx context.Context, item WorkItem, cause error) {
	row, err := w.resolveRow(ctx, item)
	if err != nil {
		log.Error("Cannot record exhausted attempt for task %s language %s: %v", item.TaskID, item.LanguageCode, err)
		return
	}
	if row != nil {
		if err := w.store.MarkTranslationFailed(ctx, row.ID, cause.Error()); err != nil {
			log.Error("Failed to mark translation %s failed: %v", row.ID, err)
			return
		}
	}
	if err := w.settle(ctx, item.TaskID); err != nil {
		log.Error("Failed to settle task %s after exhausted attempt: %v", item.TaskID, err)
	}
}

// resolveRow finds the row this invocation should work on. Nil means the
// language is already settled.
func (w *Worker) resolveRow(ctx context.Context, item WorkItem) (*Translation, error) {
	if item.TranslationID != "" {
		row, err := w.store.GetTranslation(ctx, item.TranslationID)
		if err != nil {
			return nil, err
		}
		if row.Status.Terminal() {
			return nil, nil
		}
		return row, nil
	}

	row, err := w.store.LatestByTaskAndLanguage(ctx, item.TaskID, item.LanguageCode)
	if err != nil {
		return nil, err
	}
	if row != nil {
		if row.Status.Terminal() {
			return nil, nil
		}
		return row, nil
	}

	return w.store.CreateTranslation(ctx, NewTranslation{
		TaskID:            item.TaskID,
		TemplateID:        item.TemplateID,
		TemplateVersionID: item.TemplateVersionID,
		LanguageCode:      item.LanguageCode,
		OriginalHTML:      item.HTML,
		OriginalSubject:   item.Subject,
		Status:            TranslationPending,
	})
}

func (w *Worker) settle(ctx context.Context, taskID string) error {
	if _, err := w.store.SyncTaskCounts(ctx, taskID); err != nil {
		return WrapError(err, ErrInfrastructure, "sync task counts")
	}
	if err := w.evaluator.Evaluate(ctx, taskID); err != nil {
		return WrapError(err, ErrInfrastructure, "evaluate task completion")
	}
	return nil
}

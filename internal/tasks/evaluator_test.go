package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTask(t *testing.T, store *memStore, languages []string, statuses map[string]TranslationStatus) *Task {
	t.Helper()
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "d-tpl", "v-1", "Template", "en", languages)
	require.NoError(t, err)
	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, TaskProcessing, ""))

	for lang, status := range statuses {
		row, err := store.CreateTranslation(ctx, NewTranslation{
			TaskID:            task.ID,
			TemplateID:        task.TemplateID,
			TemplateVersionID: task.TemplateVersionID,
			LanguageCode:      lang,
			OriginalHTML:      "<p>hi</p>",
			OriginalSubject:   "hi",
			Status:            TranslationPending,
		})
		require.NoError(t, err)
		switch status {
		case TranslationCompleted:
			require.NoError(t, store.MarkTranslationCompleted(ctx, row.ID, "<p>ok</p>", "ok"))
		case TranslationFailed:
			require.NoError(t, store.MarkTranslationFailed(ctx, row.ID, "boom"))
		case TranslationProcessing:
			require.NoError(t, store.MarkTranslationProcessing(ctx, row.ID))
		}
	}
	_, err = store.SyncTaskCounts(ctx, task.ID)
	require.NoError(t, err)
	return task
}

func TestSyncTaskCountsScopedToOwningTask(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	// Two tasks over the same template tuple share version numbering but
	// never each other's counters, matching the SQLite store.
	first := seedTask(t, store, []string{"fr"}, map[string]TranslationStatus{
		"fr": TranslationCompleted,
	})
	second := seedTask(t, store, []string{"fr"}, map[string]TranslationStatus{
		"fr": TranslationFailed,
	})

	synced, err := store.SyncTaskCounts(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, synced.CompletedLanguages)
	assert.Equal(t, 0, synced.FailedLanguages)

	synced, err = store.SyncTaskCounts(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, synced.CompletedLanguages)
	assert.Equal(t, 1, synced.FailedLanguages)
}

func TestEvaluateStaysQuietWhileLanguagesRemain(t *testing.T) {
	store := newMemStore()
	bus := NewCompletionBus()
	evaluator := NewEvaluator(store, bus, 0)

	task := seedTask(t, store, []string{"fr", "de"}, map[string]TranslationStatus{
		"fr": TranslationCompleted,
		"de": TranslationProcessing,
	})
	ch := bus.Subscribe(task.ID)

	require.NoError(t, evaluator.Evaluate(context.Background(), task.ID))
	assert.Empty(t, ch)
}

func TestEvaluateSignalsSuccess(t *testing.T) {
	store := newMemStore()
	bus := NewCompletionBus()
	evaluator := NewEvaluator(store, bus, 0)

	task := seedTask(t, store, []string{"fr", "de"}, map[string]TranslationStatus{
		"fr": TranslationCompleted,
		"de": TranslationCompleted,
	})
	ch := bus.Subscribe(task.ID)

	require.NoError(t, evaluator.Evaluate(context.Background(), task.ID))
	require.Len(t, ch, 1)
	c := <-ch
	assert.True(t, c.Success)
	assert.Equal(t, 2, c.CompletedLanguages)
	assert.Empty(t, c.ErrorMessage)
}

func TestEvaluateSignalsFailureSummary(t *testing.T) {
	store := newMemStore()
	bus := NewCompletionBus()
	evaluator := NewEvaluator(store, bus, 0)

	task := seedTask(t, store, []string{"fr", "de", "ja"}, map[string]TranslationStatus{
		"fr": TranslationCompleted,
		"de": TranslationFailed,
		"ja": TranslationFailed,
	})
	ch := bus.Subscribe(task.ID)

	require.NoError(t, evaluator.Evaluate(context.Background(), task.ID))
	require.Len(t, ch, 1)
	c := <-ch
	assert.False(t, c.Success)
	assert.Equal(t, "2 languages failed", c.ErrorMessage)
}

func TestEvaluateSkipsFinalizedTasks(t *testing.T) {
	store := newMemStore()
	bus := NewCompletionBus()
	evaluator := NewEvaluator(store, bus, 0)

	task := seedTask(t, store, []string{"fr"}, map[string]TranslationStatus{
		"fr": TranslationCompleted,
	})
	require.NoError(t, store.UpdateTaskStatus(context.Background(), task.ID, TaskCompleted, ""))
	ch := bus.Subscribe(task.ID)

	require.NoError(t, evaluator.Evaluate(context.Background(), task.ID))
	assert.Empty(t, ch)
}

package tasks

import (
	"context"
	"time"
)

// Store is the durable job store for tasks and translation rows.
//
// Each operation is atomic. Cross-row consistency is reached through
// SyncTaskCounts, which recomputes a task's aggregate counters from the
// latest live translation row per language instead of trusting accumulated
// increments. Implementations must assign versions so that two concurrent
// writers can never both persist the same version for one
// (template, template version, language) tuple.
type Store interface {
	CreateTask(ctx context.Context, templateID, templateVersionID, templateName, sourceLanguage string, targetLanguages []string) (*Task, error)
	GetTask(ctx context.Context, taskID string) (*Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, errorMessage string) error
	// SyncTaskCounts recomputes completed/failed language counts from the
	// latest live row per language and returns the refreshed task.
	SyncTaskCounts(ctx context.Context, taskID string) (*Task, error)
	ListUnfinishedTasks(ctx context.Context) ([]*Task, error)
	RecentTasks(ctx context.Context, limit int) ([]*Task, error)
	// FailStaleTasks force-fails unfinished tasks untouched since cutoff and
	// returns how many were affected.
	FailStaleTasks(ctx context.Context, cutoff time.Time) (int64, error)

	// CreateTranslation inserts a row at the next version for its language
	// tuple, retrying on version collision.
	CreateTranslation(ctx context.Context, nt NewTranslation) (*Translation, error)
	GetTranslation(ctx context.Context, translationID string) (*Translation, error)
	// NextVersion returns max(version)+1 over all rows (including
	// soft-deleted ones) for the tuple, or 1 if none exist.
	NextVersion(ctx context.Context, templateID, templateVersionID, languageCode string) (int, error)
	// LatestByTaskAndLanguage returns the highest-version, most recently
	// updated live row for the task and language, or nil if none exists.
	LatestByTaskAndLanguage(ctx context.Context, taskID, languageCode string) (*Translation, error)
	ListTaskTranslations(ctx context.Context, taskID string) ([]*Translation, error)
	TranslationsByTemplate(ctx context.Context, templateID string) ([]*Task, []*Translation, error)

	MarkTranslationProcessing(ctx context.Context, translationID string) error
	MarkTranslationCompleted(ctx context.Context, translationID, translatedHTML, translatedSubject string) error
	MarkTranslationFailed(ctx context.Context, translationID, errorMessage string) error

	// RequestRetranslate supersedes a terminal row with a fresh row at the
	// next version, reopens the owning task and resyncs its counters.
	RequestRetranslate(ctx context.Context, translationID, reason string) (*RetranslateResult, error)
	MarkVerified(ctx context.Context, translationID string) (*Translation, error)
	// SoftDelete excludes the row from every latest-row and aggregate query
	// while retaining it for audit. Deleting a superseded version exposes
	// the previous one as latest again; deleting the only live row for a
	// language vacates that slot in future recomputations. A task that was
	// already finalized keeps its terminal status as history, so its
	// counters may then sum below the language total.
	SoftDelete(ctx context.Context, translationID string) (*Translation, error)
}

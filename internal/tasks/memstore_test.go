package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for orchestration tests. It mirrors the
// SQLite store's semantics: recomputed counters, version assignment over
// all rows including soft-deleted ones, and latest-live-row selection by
// highest version then recency.
type memStore struct {
	mu           sync.Mutex
	tasks        map[string]*Task
	translations map[string]*Translation

	// failProcessing and failSync make the next N calls of the
	// corresponding operation fail, simulating an unavailable store.
	failProcessing int
	failSync       int
}

func newMemStore() *memStore {
	return &memStore{
		tasks:        make(map[string]*Task),
		translations: make(map[string]*Translation),
	}
}

func (m *memStore) CreateTask(_ context.Context, templateID, templateVersionID, templateName, sourceLanguage string, targetLanguages []string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	task := &Task{
		ID:                uuid.NewString(),
		TemplateID:        templateID,
		TemplateVersionID: templateVersionID,
		TemplateName:      templateName,
		SourceLanguage:    sourceLanguage,
		TargetLanguages:   append([]string(nil), targetLanguages...),
		Status:            TaskQueued,
		TotalLanguages:    len(targetLanguages),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.tasks[task.ID] = task
	return copyTask(task), nil
}

func (m *memStore) GetTask(_ context.Context, taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, Errorf(ErrNotFound, "task %s not found", taskID)
	}
	return copyTask(task), nil
}

func (m *memStore) UpdateTaskStatus(_ context.Context, taskID string, status TaskStatus, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return Errorf(ErrNotFound, "task %s not found", taskID)
	}
	task.Status = status
	task.ErrorMessage = errorMessage
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) SyncTaskCounts(_ context.Context, taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSync > 0 {
		m.failSync--
		return nil, Errorf(ErrInfrastructure, "store unavailable")
	}
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, Errorf(ErrNotFound, "task %s not found", taskID)
	}
	m.resyncLocked(task)
	return copyTask(task), nil
}

func (m *memStore) resyncLocked(task *Task) {
	completed, failed := 0, 0
	for _, lang := range task.TargetLanguages {
		row := m.latestLiveLocked(task.ID, lang)
		if row == nil {
			continue
		}
		switch row.Status {
		case TranslationCompleted:
			completed++
		case TranslationFailed:
			failed++
		}
	}
	task.CompletedLanguages = completed
	task.FailedLanguages = failed
	task.UpdatedAt = time.Now().UTC()
}

// latestLiveLocked is scoped by task id so sibling tasks for the same
// template tuple never bleed into each other's counters.
func (m *memStore) latestLiveLocked(taskID, lang string) *Translation {
	var best *Translation
	for _, row := range m.translations {
		if row.DeletedAt != nil || row.TaskID != taskID || row.LanguageCode != lang {
			continue
		}
		if best == nil || row.Version > best.Version ||
			(row.Version == best.Version && row.UpdatedAt.After(best.UpdatedAt)) {
			best = row
		}
	}
	return best
}

func (m *memStore) ListUnfinishedTasks(_ context.Context) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, task := range m.tasks {
		if !task.Status.Terminal() {
			out = append(out, copyTask(task))
		}
	}
	return out, nil
}

func (m *memStore) RecentTasks(_ context.Context, limit int) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, copyTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FailStaleTasks(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, task := range m.tasks {
		if !task.Status.Terminal() && task.UpdatedAt.Before(cutoff) {
			task.Status = TaskFailed
			task.ErrorMessage = "task timed out"
			task.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateTranslation(_ context.Context, nt NewTranslation) (*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	row := &Translation{
		ID:                uuid.NewString(),
		TaskID:            nt.TaskID,
		TemplateID:        nt.TemplateID,
		TemplateVersionID: nt.TemplateVersionID,
		LanguageCode:      nt.LanguageCode,
		Version:           m.nextVersionLocked(nt.TemplateID, nt.TemplateVersionID, nt.LanguageCode),
		OriginalHTML:      nt.OriginalHTML,
		OriginalSubject:   nt.OriginalSubject,
		Status:            nt.Status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.translations[row.ID] = row
	return copyTranslation(row), nil
}

func (m *memStore) nextVersionLocked(templateID, templateVersionID, lang string) int {
	max := 0
	for _, row := range m.translations {
		if row.TemplateID == templateID && row.TemplateVersionID == templateVersionID &&
			row.LanguageCode == lang && row.Version > max {
			max = row.Version
		}
	}
	return max + 1
}

func (m *memStore) GetTranslation(_ context.Context, translationID string) (*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.translations[translationID]
	if !ok {
		return nil, Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	return copyTranslation(row), nil
}

func (m *memStore) NextVersion(_ context.Context, templateID, templateVersionID, languageCode string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextVersionLocked(templateID, templateVersionID, languageCode), nil
}

func (m *memStore) LatestByTaskAndLanguage(_ context.Context, taskID, languageCode string) (*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Translation
	for _, row := range m.translations {
		if row.DeletedAt != nil || row.TaskID != taskID || row.LanguageCode != languageCode {
			continue
		}
		if best == nil || row.Version > best.Version ||
			(row.Version == best.Version && row.UpdatedAt.After(best.UpdatedAt)) {
			best = row
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyTranslation(best), nil
}

func (m *memStore) ListTaskTranslations(_ context.Context, taskID string) ([]*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Translation
	for _, row := range m.translations {
		if row.TaskID == taskID {
			out = append(out, copyTranslation(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LanguageCode != out[j].LanguageCode {
			return out[i].LanguageCode < out[j].LanguageCode
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (m *memStore) TranslationsByTemplate(_ context.Context, templateID string) ([]*Task, []*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*Task
	for _, task := range m.tasks {
		if task.TemplateID == templateID {
			tasks = append(tasks, copyTask(task))
		}
	}
	var rows []*Translation
	for _, row := range m.translations {
		if row.TemplateID == templateID && row.DeletedAt == nil {
			rows = append(rows, copyTranslation(row))
		}
	}
	return tasks, rows, nil
}

func (m *memStore) MarkTranslationProcessing(_ context.Context, translationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failProcessing > 0 {
		m.failProcessing--
		return Errorf(ErrInfrastructure, "store unavailable")
	}
	row, ok := m.translations[translationID]
	if !ok {
		return Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	row.Status = TranslationProcessing
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) MarkTranslationCompleted(_ context.Context, translationID, translatedHTML, translatedSubject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.translations[translationID]
	if !ok {
		return Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	row.Status = TranslationCompleted
	row.TranslatedHTML = translatedHTML
	row.TranslatedSubject = translatedSubject
	row.ErrorMessage = ""
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) MarkTranslationFailed(_ context.Context, translationID, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.translations[translationID]
	if !ok {
		return Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	row.Status = TranslationFailed
	row.ErrorMessage = errorMessage
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) RequestRetranslate(_ context.Context, translationID, reason string) (*RetranslateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.translations[translationID]
	if !ok {
		return nil, Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	if old.DeletedAt != nil {
		return nil, Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	if !old.Status.Terminal() {
		return nil, Errorf(ErrConflict, "translation %s is still %s", translationID, old.Status)
	}
	task, ok := m.tasks[old.TaskID]
	if !ok {
		return nil, Errorf(ErrNotFound, "task %s not found", old.TaskID)
	}

	now := time.Now().UTC()
	row := &Translation{
		ID:                uuid.NewString(),
		TaskID:            old.TaskID,
		TemplateID:        old.TemplateID,
		TemplateVersionID: old.TemplateVersionID,
		LanguageCode:      old.LanguageCode,
		Version:           m.nextVersionLocked(old.TemplateID, old.TemplateVersionID, old.LanguageCode),
		OriginalHTML:      old.OriginalHTML,
		OriginalSubject:   old.OriginalSubject,
		Status:            TranslationProcessing,
		RetranslateReason: reason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.translations[row.ID] = row
	old.RetranslateAttempts++
	old.UpdatedAt = now

	priorStatus := old.Status
	task.Status = TaskProcessing
	task.ErrorMessage = ""
	m.resyncLocked(task)

	return &RetranslateResult{
		Old:         copyTranslation(old),
		New:         copyTranslation(row),
		PriorStatus: priorStatus,
		Task:        copyTask(task),
	}, nil
}

func (m *memStore) MarkVerified(_ context.Context, translationID string) (*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.translations[translationID]
	if !ok {
		return nil, Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	if row.Status != TranslationCompleted {
		return nil, Errorf(ErrConflict, "translation %s is %s, not completed", translationID, row.Status)
	}
	now := time.Now().UTC()
	row.VerifiedAt = &now
	row.UpdatedAt = now
	return copyTranslation(row), nil
}

func (m *memStore) SoftDelete(_ context.Context, translationID string) (*Translation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.translations[translationID]
	if !ok {
		return nil, Errorf(ErrNotFound, "translation %s not found", translationID)
	}
	now := time.Now().UTC()
	row.DeletedAt = &now
	row.UpdatedAt = now
	return copyTranslation(row), nil
}

func copyTask(t *Task) *Task {
	dup := *t
	dup.TargetLanguages = append([]string(nil), t.TargetLanguages...)
	return &dup
}

func copyTranslation(t *Translation) *Translation {
	dup := *t
	return &dup
}

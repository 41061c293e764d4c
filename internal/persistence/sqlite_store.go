package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MimeLyc/email-template-translator/internal/tasks"
)

// versionInsertAttempts bounds the recompute-and-retry loop used when two
// writers race for the same next version.
const versionInsertAttempts = 5

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore implements tasks.Store on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ tasks.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

const taskColumns = `id, template_id, template_version_id, template_name, source_language, target_languages,
	status, total_languages, completed_languages, failed_languages, error_message, created_at, updated_at`

const translationColumns = `id, task_id, template_id, template_version_id, language_code, version,
	original_html, original_subject, translated_html, translated_subject, status, error_message,
	retranslate_reason, retranslate_attempts, verified_at, deleted_at, created_at, updated_at`

// latestLiveCond selects, among the live rows of a task, the single latest
// row per language: highest version, tie-broken by most recent update. It is
// the one definition of "current state" shared by aggregate recomputation
// and latest-row lookups. The enclosing query must alias
// template_translations as t.
const latestLiveCond = `t.deleted_at IS NULL AND NOT EXISTS (
	SELECT 1 FROM template_translations o
	WHERE o.task_id = t.task_id
	  AND o.language_code = t.language_code
	  AND o.deleted_at IS NULL
	  AND (o.version > t.version OR (o.version = t.version AND o.updated_at > t.updated_at))
)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*tasks.Task, error) {
	var item tasks.Task
	var status string
	var targetsJSON string
	if err := row.Scan(
		&item.ID,
		&item.TemplateID,
		&item.TemplateVersionID,
		&item.TemplateName,
		&item.SourceLanguage,
		&targetsJSON,
		&status,
		&item.TotalLanguages,
		&item.CompletedLanguages,
		&item.FailedLanguages,
		&item.ErrorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.Status = tasks.TaskStatus(status)
	if err := json.Unmarshal([]byte(targetsJSON), &item.TargetLanguages); err != nil {
		return nil, fmt.Errorf("decode target languages: %w", err)
	}
	return &item, nil
}

func scanTranslation(row rowScanner) (*tasks.Translation, error) {
	var item tasks.Translation
	var status string
	var verifiedAt, deletedAt sql.NullTime
	if err := row.Scan(
		&item.ID,
		&item.TaskID,
		&item.TemplateID,
		&item.TemplateVersionID,
		&item.LanguageCode,
		&item.Version,
		&item.OriginalHTML,
		&item.OriginalSubject,
		&item.TranslatedHTML,
		&item.TranslatedSubject,
		&status,
		&item.ErrorMessage,
		&item.RetranslateReason,
		&item.RetranslateAttempts,
		&verifiedAt,
		&deletedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.Status = tasks.TranslationStatus(status)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		item.VerifiedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		item.DeletedAt = &t
	}
	return &item, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, templateID, templateVersionID, templateName, sourceLanguage string, targetLanguages []string) (*tasks.Task, error) {
	if len(targetLanguages) == 0 {
		return nil, tasks.NewError(tasks.ErrValidation, "target languages must not be empty")
	}
	if templateID == "" || templateVersionID == "" {
		return nil, tasks.NewError(tasks.ErrValidation, "template id and version id are required")
	}
	if sourceLanguage == "" {
		sourceLanguage = "en"
	}

	targetsJSON, err := json.Marshal(targetLanguages)
	if err != nil {
		return nil, fmt.Errorf("encode target languages: %w", err)
	}

	now := time.Now().UTC()
	task := &tasks.Task{
		ID:                uuid.NewString(),
		TemplateID:        templateID,
		TemplateVersionID: templateVersionID,
		TemplateName:      templateName,
		SourceLanguage:    sourceLanguage,
		TargetLanguages:   targetLanguages,
		Status:            tasks.TaskQueued,
		TotalLanguages:    len(targetLanguages),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO translation_tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.TemplateID,
		task.TemplateVersionID,
		task.TemplateName,
		task.SourceLanguage,
		string(targetsJSON),
		string(task.Status),
		task.TotalLanguages,
		task.CompletedLanguages,
		task.FailedLanguages,
		task.ErrorMessage,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*tasks.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM translation_tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tasks.Errorf(tasks.ErrNotFound, "task %s not found", taskID)
		}
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	return task, nil
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID string, status tasks.TaskStatus, errorMessage string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE translation_tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status),
		errorMessage,
		time.Now().UTC(),
		taskID,
	)
	if err != nil {
		return fmt.Errorf("update task %s status: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tasks.Errorf(tasks.ErrNotFound, "task %s not found", taskID)
	}
	return nil
}

// SyncTaskCounts recomputes the task's completed/failed counters from the
// latest live row per language in one transaction. Recomputation, rather
// than increment/decrement, keeps the counters correct when workers finish
// at nearly the same time.
func (s *SQLiteStore) SyncTaskCounts(ctx context.Context, taskID string) (*tasks.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var completed, failed int
	err = tx.QueryRowContext(
		ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN t.status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.status = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM template_translations t
		 WHERE t.task_id = ? AND `+latestLiveCond,
		taskID,
	).Scan(&completed, &failed)
	if err != nil {
		return nil, fmt.Errorf("count latest rows for task %s: %w", taskID, err)
	}

	if _, err = tx.ExecContext(
		ctx,
		`UPDATE translation_tasks SET completed_languages = ?, failed_languages = ?, updated_at = ? WHERE id = ?`,
		completed,
		failed,
		time.Now().UTC(),
		taskID,
	); err != nil {
		return nil, fmt.Errorf("sync counts for task %s: %w", taskID, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, taskID)
}

func (s *SQLiteStore) ListUnfinishedTasks(ctx context.Context) ([]*tasks.Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM translation_tasks
		 WHERE status IN ('queued', 'processing')
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *SQLiteStore) RecentTasks(ctx context.Context, limit int) ([]*tasks.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM translation_tasks ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *SQLiteStore) FailStaleTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE translation_tasks SET status = 'failed', error_message = 'timed out waiting for translations', updated_at = ?
		 WHERE status IN ('queued', 'processing') AND updated_at <= ?`,
		time.Now().UTC(),
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectTasks(rows *sql.Rows) ([]*tasks.Task, error) {
	ret := make([]*tasks.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// NextVersion computes max(version)+1 for the tuple. The max scans all rows
// including soft-deleted ones so new versions never collide with retained
// audit rows.
func (s *SQLiteStore) NextVersion(ctx context.Context, templateID, templateVersionID, languageCode string) (int, error) {
	var next int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM template_translations
		 WHERE template_id = ? AND template_version_id = ? AND language_code = ?`,
		templateID,
		templateVersionID,
		languageCode,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("compute next version: %w", err)
	}
	return next, nil
}

// CreateTranslation inserts a row at the next version. A UNIQUE index on
// (template_id, template_version_id, language_code, version) guards the
// read-then-insert window: on collision the version is recomputed and the
// insert retried.
func (s *SQLiteStore) CreateTranslation(ctx context.Context, nt tasks.NewTranslation) (*tasks.Translation, error) {
	if nt.TaskID == "" || nt.LanguageCode == "" {
		return nil, tasks.NewError(tasks.ErrValidation, "task id and language code are required")
	}
	status := nt.Status
	if status == "" {
		status = tasks.TranslationPending
	}

	var lastErr error
	for attempt := 0; attempt < versionInsertAttempts; attempt++ {
		version, err := s.NextVersion(ctx, nt.TemplateID, nt.TemplateVersionID, nt.LanguageCode)
		if err != nil {
			return nil, err
		}
		row, err := s.insertTranslation(ctx, s.db, nt, version, status, "")
		if err == nil {
			return row, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("insert translation after %d version conflicts: %w", versionInsertAttempts, lastErr)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertTranslation(ctx context.Context, db execer, nt tasks.NewTranslation, version int, status tasks.TranslationStatus, reason string) (*tasks.Translation, error) {
	now := time.Now().UTC()
	row := &tasks.Translation{
		ID:                uuid.NewString(),
		TaskID:            nt.TaskID,
		TemplateID:        nt.TemplateID,
		TemplateVersionID: nt.TemplateVersionID,
		LanguageCode:      nt.LanguageCode,
		Version:           version,
		OriginalHTML:      nt.OriginalHTML,
		OriginalSubject:   nt.OriginalSubject,
		Status:            status,
		RetranslateReason: reason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO template_translations (
			id, task_id, template_id, template_version_id, language_code, version,
			original_html, original_subject, translated_html, translated_subject, status, error_message,
			retranslate_reason, retranslate_attempts, verified_at, deleted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, '', ?, 0, NULL, NULL, ?, ?)`,
		row.ID,
		row.TaskID,
		row.TemplateID,
		row.TemplateVersionID,
		row.LanguageCode,
		row.Version,
		row.OriginalHTML,
		row.OriginalSubject,
		string(row.Status),
		row.RetranslateReason,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) GetTranslation(ctx context.Context, translationID string) (*tasks.Translation, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+translationColumns+` FROM template_translations WHERE id = ? AND deleted_at IS NULL`,
		translationID,
	)
	item, err := scanTranslation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tasks.Errorf(tasks.ErrNotFound, "translation %s not found", translationID)
		}
		return nil, fmt.Errorf("load translation %s: %w", translationID, err)
	}
	return item, nil
}

func (s *SQLiteStore) LatestByTaskAndLanguage(ctx context.Context, taskID, languageCode string) (*tasks.Translation, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+translationColumns+` FROM template_translations t
		 WHERE t.task_id = ? AND t.language_code = ? AND `+latestLiveCond,
		taskID,
		languageCode,
	)
	item, err := scanTranslation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest translation for task %s language %s: %w", taskID, languageCode, err)
	}
	return item, nil
}

func (s *SQLiteStore) ListTaskTranslations(ctx context.Context, taskID string) ([]*tasks.Translation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+translationColumns+` FROM template_translations
		 WHERE task_id = ? AND deleted_at IS NULL
		 ORDER BY language_code ASC, version DESC`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTranslations(rows)
}

func (s *SQLiteStore) TranslationsByTemplate(ctx context.Context, templateID string) ([]*tasks.Task, []*tasks.Translation, error) {
	taskRows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM translation_tasks WHERE template_id = ? ORDER BY created_at DESC`,
		templateID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer taskRows.Close()
	taskList, err := collectTasks(taskRows)
	if err != nil {
		return nil, nil, err
	}

	translationRows, err := s.db.QueryContext(
		ctx,
		`SELECT `+translationColumns+` FROM template_translations
		 WHERE template_id = ? AND deleted_at IS NULL
		 ORDER BY created_at DESC`,
		templateID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer translationRows.Close()
	translations, err := collectTranslations(translationRows)
	if err != nil {
		return nil, nil, err
	}
	return taskList, translations, nil
}

func collectTranslations(rows *sql.Rows) ([]*tasks.Translation, error) {
	ret := make([]*tasks.Translation, 0)
	for rows.Next() {
		item, err := scanTranslation(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) MarkTranslationProcessing(ctx context.Context, translationID string) error {
	return s.updateTranslation(ctx, translationID,
		`UPDATE template_translations SET status = 'processing', updated_at = ? WHERE id = ? AND deleted_at IS NULL`)
}

func (s *SQLiteStore) MarkTranslationCompleted(ctx context.Context, translationID, translatedHTML, translatedSubject string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE template_translations
		 SET status = 'completed', translated_html = ?, translated_subject = ?, error_message = '', updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		translatedHTML,
		translatedSubject,
		time.Now().UTC(),
		translationID,
	)
	if err != nil {
		return fmt.Errorf("mark translation %s completed: %w", translationID, err)
	}
	return requireAffected(res, translationID)
}

func (s *SQLiteStore) MarkTranslationFailed(ctx context.Context, translationID, errorMessage string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE template_translations SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		errorMessage,
		time.Now().UTC(),
		translationID,
	)
	if err != nil {
		return fmt.Errorf("mark translation %s failed: %w", translationID, err)
	}
	return requireAffected(res, translationID)
}

func (s *SQLiteStore) updateTranslation(ctx context.Context, translationID, query string) error {
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), translationID)
	if err != nil {
		return fmt.Errorf("update translation %s: %w", translationID, err)
	}
	return requireAffected(res, translationID)
}

func requireAffected(res sql.Result, translationID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tasks.Errorf(tasks.ErrNotFound, "translation %s not found", translationID)
	}
	return nil
}

// RequestRetranslate supersedes a terminal row with a new row at the next
// version inside one transaction: the old row's retranslate counter is
// bumped, the owning task is forced back to processing, and the language
// slot reopens through a full counter resync afterwards.
func (s *SQLiteStore) RequestRetranslate(ctx context.Context, translationID, reason string) (*tasks.RetranslateResult, error) {
	var old, created *tasks.Translation

	var lastErr error
	for attempt := 0; attempt < versionInsertAttempts; attempt++ {
		var retry bool
		var err error
		old, created, retry, err = s.requestRetranslateOnce(ctx, translationID, reason)
		if err == nil {
			break
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		created = nil
	}
	if created == nil {
		return nil, fmt.Errorf("retranslate %s after %d version conflicts: %w", translationID, versionInsertAttempts, lastErr)
	}

	task, err := s.SyncTaskCounts(ctx, old.TaskID)
	if err != nil {
		return nil, err
	}
	return &tasks.RetranslateResult{
		Old:         old,
		New:         created,
		PriorStatus: old.Status,
		Task:        task,
	}, nil
}

func (s *SQLiteStore) requestRetranslateOnce(ctx context.Context, translationID, reason string) (old, created *tasks.Translation, retry bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+translationColumns+` FROM template_translations WHERE id = ? AND deleted_at IS NULL`,
		translationID,
	)
	old, err = scanTranslation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			err = tasks.Errorf(tasks.ErrNotFound, "translation %s not found", translationID)
		}
		return nil, nil, false, err
	}
	if old.Status.InFlight() {
		err = tasks.Errorf(tasks.ErrConflict, "translation %s is still %s", translationID, old.Status)
		return nil, nil, false, err
	}

	var version int
	if err = tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM template_translations
		 WHERE template_id = ? AND template_version_id = ? AND language_code = ?`,
		old.TemplateID,
		old.TemplateVersionID,
		old.LanguageCode,
	).Scan(&version); err != nil {
		return nil, nil, false, fmt.Errorf("compute next version: %w", err)
	}

	created, err = s.insertTranslation(ctx, tx, tasks.NewTranslation{
		TaskID:            old.TaskID,
		TemplateID:        old.TemplateID,
		TemplateVersionID: old.TemplateVersionID,
		LanguageCode:      old.LanguageCode,
		OriginalHTML:      old.OriginalHTML,
		OriginalSubject:   old.OriginalSubject,
	}, version, tasks.TranslationProcessing, reason)
	if err != nil {
		return nil, nil, isUniqueViolation(err), err
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(
		ctx,
		`UPDATE template_translations SET retranslate_attempts = retranslate_attempts + 1, updated_at = ? WHERE id = ?`,
		now,
		old.ID,
	); err != nil {
		return nil, nil, false, err
	}
	if _, err = tx.ExecContext(
		ctx,
		`UPDATE translation_tasks SET status = 'processing', error_message = '', updated_at = ? WHERE id = ?`,
		now,
		old.TaskID,
	); err != nil {
		return nil, nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, false, err
	}
	return old, created, false, nil
}

func (s *SQLiteStore) MarkVerified(ctx context.Context, translationID string) (*tasks.Translation, error) {
	item, err := s.GetTranslation(ctx, translationID)
	if err != nil {
		return nil, err
	}
	if item.Status != tasks.TranslationCompleted {
		return nil, tasks.Errorf(tasks.ErrConflict, "translation %s is %s, only completed translations can be verified", translationID, item.Status)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE template_translations SET verified_at = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		translationID,
	); err != nil {
		return nil, fmt.Errorf("mark translation %s verified: %w", translationID, err)
	}
	item.VerifiedAt = &now
	item.UpdatedAt = now
	return item, nil
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, translationID string) (*tasks.Translation, error) {
	item, err := s.GetTranslation(ctx, translationID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE template_translations SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now,
		now,
		translationID,
	); err != nil {
		return nil, fmt.Errorf("soft delete translation %s: %w", translationID, err)
	}
	item.DeletedAt = &now
	item.UpdatedAt = now
	return item, nil
}

package tasks

import "time"

// TaskStatus is the lifecycle state of a TranslationTask.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further automatic transition occurs.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TranslationStatus is the lifecycle state of a single translation attempt.
// Transitions move only forward: pending -> processing -> completed|failed.
// Retranslation never mutates a terminal row; it creates a new row at the
// next version.
type TranslationStatus string

const (
	TranslationPending    TranslationStatus = "pending"
	TranslationProcessing TranslationStatus = "processing"
	TranslationCompleted  TranslationStatus = "completed"
	TranslationFailed     TranslationStatus = "failed"
)

func (s TranslationStatus) Terminal() bool {
	return s == TranslationCompleted || s == TranslationFailed
}

func (s TranslationStatus) InFlight() bool {
	return s == TranslationPending || s == TranslationProcessing
}

// Task is one coordinated request to translate a single template version
// into a fixed set of target languages.
//
// Invariant: CompletedLanguages + FailedLanguages <= TotalLanguages, and
// while the task is in flight the status turns terminal exactly when the
// sum reaches TotalLanguages. Counters are always recomputed from the
// translation rows, never incremented. An operator soft-deleting every
// version of a language afterwards vacates that slot, so a finalized task's
// counters can later sum below TotalLanguages; the status stays terminal as
// history.
type Task struct {
	ID                 string     `json:"id"`
	TemplateID         string     `json:"template_id"`
	TemplateVersionID  string     `json:"template_version_id"`
	TemplateName       string     `json:"template_name"`
	SourceLanguage     string     `json:"source_language"`
	TargetLanguages    []string   `json:"target_languages"`
	Status             TaskStatus `json:"status"`
	TotalLanguages     int        `json:"total_languages"`
	CompletedLanguages int        `json:"completed_languages"`
	FailedLanguages    int        `json:"failed_languages"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Translation is one versioned attempt to translate a specific template
// version into a specific language. Rows are soft-deleted, never removed,
// and the latest live row per (template, template version, language) is the
// one with the highest version, tie-broken by recency.
type Translation struct {
	ID                  string            `json:"id"`
	TaskID              string            `json:"task_id"`
	TemplateID          string            `json:"template_id"`
	TemplateVersionID   string            `json:"template_version_id"`
	LanguageCode        string            `json:"language_code"`
	Version             int               `json:"version"`
	OriginalHTML        string            `json:"original_html"`
	OriginalSubject     string            `json:"original_subject"`
	TranslatedHTML      string            `json:"translated_html,omitempty"`
	TranslatedSubject   string            `json:"translated_subject,omitempty"`
	Status              TranslationStatus `json:"status"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	RetranslateReason   string            `json:"retranslate_reason,omitempty"`
	RetranslateAttempts int               `json:"retranslate_attempts"`
	VerifiedAt          *time.Time        `json:"verified_at,omitempty"`
	DeletedAt           *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewTranslation carries the fields needed to insert a translation row.
// The store assigns the id and the next version for the
// (TemplateID, TemplateVersionID, LanguageCode) tuple.
type NewTranslation struct {
	TaskID            string
	TemplateID        string
	TemplateVersionID string
	LanguageCode      string
	OriginalHTML      string
	OriginalSubject   string
	Status            TranslationStatus
}

// RetranslateResult is what a retranslation request produces: the superseded
// row, the new row at the next version, the superseded row's prior status,
// and the owning task after its counters were resynced.
type RetranslateResult struct {
	Old         *Translation      `json:"old"`
	New         *Translation      `json:"new"`
	PriorStatus TranslationStatus `json:"prior_status"`
	Task        *Task             `json:"task"`
}

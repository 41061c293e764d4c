package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/email-template-translator/internal/tasks"
)

const defaultRecentTaskLimit = 20

type retranslateRequest struct {
	TranslationID string `json:"translation_id"`
	Reason        string `json:"reason"`
}

type translationActionRequest struct {
	Action string `json:"action"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type retranslateResponse struct {
	Success bool `json:"success"`
	// TranslationID names the freshly created attempt.
	TranslationID string `json:"translation_id"`
}

type taskDetailResponse struct {
	Task         *tasks.Task          `json:"task"`
	Translations []*tasks.Translation `json:"translations"`
}

type recentTasksResponse struct {
	Summaries []taskDetailResponse `json:"summaries"`
}

type templateTranslationsResponse struct {
	Tasks        []*tasks.Task        `json:"tasks"`
	Translations []*tasks.Translation `json:"translations"`
}

func (s *Server) handleStartTranslation(w http.ResponseWriter, r *http.Request) {
	var req tasks.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	task, err := s.coordinator.StartTranslation(r.Context(), req)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleRetranslate(w http.ResponseWriter, r *http.Request) {
	var req retranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TranslationID == "" {
		writeError(w, http.StatusBadRequest, "translation_id is required")
		return
	}

	res, err := s.coordinator.RequestRetranslation(r.Context(), req.TranslationID, req.Reason)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retranslateResponse{Success: true, TranslationID: res.New.ID})
}

func (s *Server) handleTranslationAction(w http.ResponseWriter, r *http.Request) {
	translationID := chi.URLParam(r, "translationID")

	var req translationActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch req.Action {
	case "verify":
		if _, err := s.store.MarkVerified(r.Context(), translationID); err != nil {
			writeTaskError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (s *Server) handleDeleteTranslation(w http.ResponseWriter, r *http.Request) {
	translationID := chi.URLParam(r, "translationID")

	row, err := s.store.SoftDelete(r.Context(), translationID)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	// The deleted row no longer counts toward its task; a finalized task
	// keeps its terminal status even if the delete vacated a counted slot.
	if _, err := s.store.SyncTaskCounts(r.Context(), row.TaskID); err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleRecentTasks(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentTaskLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	list, err := s.store.RecentTasks(r.Context(), limit)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	summaries := make([]taskDetailResponse, 0, len(list))
	for _, task := range list {
		rows, err := s.store.ListTaskTranslations(r.Context(), task.ID)
		if err != nil {
			writeTaskError(w, err)
			return
		}
		summaries = append(summaries, taskDetailResponse{Task: task, Translations: rows})
	}
	writeJSON(w, http.StatusOK, recentTasksResponse{Summaries: summaries})
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	rows, err := s.store.ListTaskTranslations(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskDetailResponse{Task: task, Translations: rows})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.ListTemplates(r.Context())
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTemplateVersions(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")

	versions, err := s.templates.GetTemplateVersions(r.Context(), templateID)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleTemplateTranslations(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")

	taskList, rows, err := s.store.TranslationsByTemplate(r.Context(), templateID)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templateTranslationsResponse{Tasks: taskList, Translations: rows})
}

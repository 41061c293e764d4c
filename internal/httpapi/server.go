package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MimeLyc/email-template-translator/internal/tasks"
	"github.com/MimeLyc/email-template-translator/internal/templates"
	"github.com/MimeLyc/email-template-translator/pkg/log"
)

// templateBrowser is the read-only slice of the template host the API
// exposes for browsing.
type templateBrowser interface {
	ListTemplates(ctx context.Context) ([]templates.Template, error)
	GetTemplateVersions(ctx context.Context, templateID string) ([]templates.Version, error)
}

type Server struct {
	coordinator *tasks.Coordinator
	store       tasks.Store
	templates   templateBrowser

	router *chi.Mux
	server *http.Server
}

func NewServer(coordinator *tasks.Coordinator, store tasks.Store, browser templateBrowser) *Server {
	s := &Server{
		coordinator: coordinator,
		store:       store,
		templates:   browser,
		router:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/translations", func(r chi.Router) {
			r.Post("/start", s.handleStartTranslation)
			r.Post("/retranslate", s.handleRetranslate)
			r.Patch("/{translationID}", s.handleTranslationAction)
			r.Delete("/{translationID}", s.handleDeleteTranslation)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/recent", s.handleRecentTasks)
			r.Get("/{taskID}", s.handleTaskDetail)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Get("/{templateID}/versions", s.handleTemplateVersions)
			r.Get("/{templateID}/translations", s.handleTemplateTranslations)
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeTaskError maps domain error types onto HTTP statuses; anything
// untyped is an internal error.
func writeTaskError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case tasks.IsErrorType(err, tasks.ErrValidation):
		status = http.StatusBadRequest
	case tasks.IsErrorType(err, tasks.ErrNotFound):
		status = http.StatusNotFound
	case tasks.IsErrorType(err, tasks.ErrConflict):
		status = http.StatusConflict
	case tasks.IsErrorType(err, tasks.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, err.Error())
}

// Package handler is the HTTP gateway. It is the only layer that turns
// component failures into transport responses; everything below it returns
// typed errors and never formats user-facing text.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agriprep/agriprep/internal/auth"
	"github.com/agriprep/agriprep/internal/bank"
	"github.com/agriprep/agriprep/internal/exam"
	"github.com/agriprep/agriprep/internal/model"
	"github.com/agriprep/agriprep/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
	auth  *auth.Service
	exam  *exam.Machine
}

// New creates a new Handler.
func New(s *store.Store, a *auth.Service, m *exam.Machine) *Handler {
	return &Handler{store: s, auth: a, exam: m}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
	r.Get("/api/subjects", h.handleSubjects)
	r.Post("/api/auth/register", h.handleRegister)
	r.Post("/api/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/profile", h.handleProfile)
		r.Post("/api/exams/{subject}/start", h.handleStartExam)
		r.Get("/api/exams/{sessionID}", h.handleExamView)
		r.Post("/api/exams/{sessionID}/answer", h.handleAnswer)
		r.Post("/api/exams/{sessionID}/goto", h.handleGoTo)
		r.Post("/api/exams/{sessionID}/next", h.handleNext)
		r.Post("/api/exams/{sessionID}/previous", h.handlePrevious)
		r.Post("/api/exams/{sessionID}/submit", h.handleSubmit)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}

func (h *Handler) handleSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"subjects": bank.Catalog()})
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	subject := model.Subject(chi.URLParam(r, "subject"))
	view, err := h.exam.Start(r.Context(), model.IdentityFromContext(r.Context()), subject)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleExamView(w http.ResponseWriter, r *http.Request) {
	view, err := h.exam.Get(r.Context(), chi.URLParam(r, "sessionID"), model.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionIndex int `json:"questionIndex"`
		OptionIndex   int `json:"optionIndex"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	err := h.exam.SelectAnswer(r.Context(),
		chi.URLParam(r, "sessionID"), model.IdentityFromContext(r.Context()),
		req.QuestionIndex, req.OptionIndex)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleGoTo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	err := h.exam.GoTo(r.Context(),
		chi.URLParam(r, "sessionID"), model.IdentityFromContext(r.Context()), req.Index)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	err := h.exam.Next(r.Context(), chi.URLParam(r, "sessionID"), model.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	err := h.exam.Previous(r.Context(), chi.URLParam(r, "sessionID"), model.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	score, updated, err := h.exam.Submit(r.Context(),
		chi.URLParam(r, "sessionID"), model.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scorePercent":    score,
		"updatedProgress": updated,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.ErrInvalidInput
	}
	return nil
}

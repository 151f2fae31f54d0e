package handler

import (
	"net/http"
	"strings"

	"github.com/agriprep/agriprep/internal/model"
)

type credentialsRequest struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Secret      string `json:"secret"`
}

type authResponse struct {
	Token string             `json:"token"`
	User  *model.UserAccount `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	token, user, err := h.auth.Register(r.Context(), req.Identity, req.DisplayName, req.Secret)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	token, user, err := h.auth.Login(r.Context(), req.Identity, req.Secret)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), model.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"progress": user.Progress,
	})
}

// requireAuth verifies the bearer token and stores the identity it resolves
// to in the request context. Verification is pure computation; no store
// lookup happens here.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.respondError(w, r, model.ErrInvalidToken)
			return
		}
		identity, err := h.auth.Verify(token)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithIdentity(r.Context(), identity)))
	})
}

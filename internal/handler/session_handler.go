package handler

import (
	"context"
	"log/slog"
	"net/http"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/navigation"
	"postraft-facade/internal/session"
)

// SessionService is the session manager as seen by the facade.
type SessionService interface {
	WaitReady(ctx context.Context) (domain.Session, error)
	Login(ctx context.Context, in session.LoginInput) (domain.Session, error)
	Register(ctx context.Context, in session.RegisterInput) (domain.Session, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (domain.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in session.ResetPasswordInput) error
}

// SessionResponse is the UI view of the session.
type SessionResponse struct {
	State         string       `json:"state"`
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user"`
	Plan          *domain.Plan `json:"plan"`
	Loading       bool         `json:"loading"`
	Redirect      string       `json:"redirect,omitempty"`
}

func newSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		State:         s.State.String(),
		Authenticated: s.IsAuthenticated(),
		User:          s.User,
		Plan:          s.Plan,
		Loading:       s.Loading,
	}
}

// MessageResponse acknowledges requests that carry no data.
type MessageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// SessionHandler serves /v1/session.
type SessionHandler struct {
	sessions SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionService, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

// Register mounts the session routes on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/session", h.current)
	mux.HandleFunc("POST /v1/session/login", h.login)
	mux.HandleFunc("POST /v1/session/register", h.register)
	mux.HandleFunc("POST /v1/session/logout", h.logout)
	mux.HandleFunc("POST /v1/session/refresh", h.refresh)
	mux.HandleFunc("POST /v1/session/forgot-password", h.forgotPassword)
	mux.HandleFunc("POST /v1/session/reset-password", h.resetPassword)
}

func (h *SessionHandler) current(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.WaitReady(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(snap))
}

func (h *SessionHandler) login(w http.ResponseWriter, r *http.Request) {
	var in session.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	h.signIn(w, r, func(ctx context.Context) (domain.Session, error) {
		return h.sessions.Login(ctx, in)
	})
}

func (h *SessionHandler) register(w http.ResponseWriter, r *http.Request) {
	var in session.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	h.signIn(w, r, func(ctx context.Context) (domain.Session, error) {
		return h.sessions.Register(ctx, in)
	})
}

func (h *SessionHandler) signIn(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (domain.Session, error)) {
	ctx, slot := navigation.WithSlot(r.Context())
	snap, err := fn(ctx)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp := newSessionResponse(snap)
	resp.Redirect = slot.Path()
	redirect(w, resp.Redirect, resp)
}

func (h *SessionHandler) logout(w http.ResponseWriter, r *http.Request) {
	ctx, slot := navigation.WithSlot(r.Context())
	if err := h.sessions.Logout(ctx); err != nil {
		WriteError(w, r, err)
		return
	}
	redirect(w, slot.Path(), MessageResponse{Message: "Logged out", Redirect: slot.Path()})
}

func (h *SessionHandler) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Refresh(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(snap))
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *SessionHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.sessions.ForgotPassword(r.Context(), req.Email); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "If that email is registered, a reset link is on its way",
	})
}

func (h *SessionHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in session.ResetPasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.sessions.ResetPassword(r.Context(), in); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated", Redirect: navigation.PathLogin})
}

// redirect answers 303 with Location when a navigation was requested.
func redirect(w http.ResponseWriter, path string, body any) {
	if path == "" {
		writeJSON(w, http.StatusOK, body)
		return
	}
	w.Header().Set("Location", path)
	writeJSON(w, http.StatusSeeOther, body)
}

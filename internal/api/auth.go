package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"mobility/m/internal/auth"
)

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login", nil)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.auth.Login(r.Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondFailure(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		respondFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := h.sessions.Issue(user)
	if err != nil {
		logrus.WithError(err).Error("unable to issue session")
		respondFailure(w, http.StatusInternalServerError, "unable to start session")
		return
	}
	h.setSessionCookie(w, token, h.sessions.TTL())
	respondJSON(w, http.StatusOK, result{Success: true, Redirect: "/dashboard"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	email := r.FormValue("email")

	_, err := h.auth.Register(r.Context(), username, password, email)
	switch {
	case errors.Is(err, auth.ErrMissingFields):
		respondFailure(w, http.StatusBadRequest, "Username and password required")
	case errors.Is(err, auth.ErrUsernameTaken):
		respondFailure(w, http.StatusConflict, "Username already exists")
	case err != nil:
		respondFailure(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, result{
			Success:  true,
			Message:  "Registration successful! Redirecting to login...",
			Redirect: "/",
		})
	}
}

// logout revokes the current session, if any, and returns to the login page.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if claims, err := h.sessions.Parse(r.Context(), token); err == nil {
			if err := h.sessions.Revoke(r.Context(), claims); err != nil {
				logrus.WithError(err).WithField("username", claims.Username).Error("unable to revoke session")
			}
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

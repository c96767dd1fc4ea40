package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"mobility/m/domain"
)

type reviewsPage struct {
	Reviews []domain.Review
}

type adminPage struct {
	Users   []domain.User
	Reviews []domain.Review
}

type dashboardPage struct {
	Username string
	IsAdmin  bool
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	h.render(w, "dashboard", dashboardPage{Username: claims.Username, IsAdmin: claims.Username == h.adminUsername})
}

func (h *Handler) navigation(w http.ResponseWriter, r *http.Request) {
	h.render(w, "navigation", nil)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	h.renderReviews(w, r)
}

func (h *Handler) postReview(w http.ResponseWriter, r *http.Request) {
	if _, err := h.reviews.Post(r.Context(), r.FormValue("username"), r.FormValue("message")); err != nil {
		logrus.WithError(err).Error("unable to post review")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.renderReviews(w, r)
}

func (h *Handler) renderReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.reviews.List(r.Context())
	if err != nil {
		logrus.WithError(err).Error("unable to list reviews")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.render(w, "reviews", reviewsPage{Reviews: list})
}

func (h *Handler) adminData(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	list, err := h.reviews.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Admin view reads oldest first, like the export.
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	h.render(w, "admin_data", adminPage{Users: users, Reviews: list})
}

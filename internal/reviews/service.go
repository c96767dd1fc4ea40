// Package reviews implements the public review board.
package reviews

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"mobility/m/domain"
	"mobility/m/internal/store"
)

type Exporter interface {
	Refresh(ctx context.Context)
}

type Service struct {
	repo     store.ReviewRepository
	exporter Exporter
}

func NewService(repo store.ReviewRepository, exporter Exporter) *Service {
	return &Service{repo: repo, exporter: exporter}
}

// List returns all reviews, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Review, error) {
	return s.repo.List(ctx)
}

// Post stores a review with the message as submitted. A blank message is
// ignored and reported as (nil, nil).
func (s *Service) Post(ctx context.Context, username, message string) (*domain.Review, error) {
	if strings.TrimSpace(message) == "" {
		return nil, nil
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = domain.AnonymousAuthor
	}

	review := &domain.Review{Username: username, Message: message}
	if err := s.repo.Create(ctx, review); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"review_id": review.ID, "username": username}).Info("review posted")
	s.exporter.Refresh(ctx)
	return review, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mobility/m/domain"
)

type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	// List returns reviews newest first.
	List(ctx context.Context) ([]domain.Review, error)
}

type reviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO reviews (username, message) VALUES (?, ?)`, review.Username, review.Message)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read review id: %w", err)
	}
	review.ID = id
	return nil
}

func (r *reviewRepository) List(ctx context.Context) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := r.db.SelectContext(ctx, &reviews,
		`SELECT id, COALESCE(username, '') AS username, COALESCE(message, '') AS message FROM reviews ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

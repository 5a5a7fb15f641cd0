package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/repository/common"
)

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreatePendingPair создаёт два ожидающих отзыва по завершённой комиссии:
// клиент -> художник и художник -> клиент. Повторное завершение не создаёт
// дубликатов за счёт ON CONFLICT по (commission_id, reviewer_id).
func (r *ReviewRepository) CreatePendingPair(ctx context.Context, commissionID, clientID, artistID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (commission_id, reviewer_id, reviewed_id, status)
		VALUES ($1, $2, $3, 'pending'), ($1, $3, $2, 'pending')
		ON CONFLICT (commission_id, reviewer_id) DO NOTHING
	`, commissionID, clientID, artistID)
	if err != nil {
		return fmt.Errorf("review repository: create pending pair %w", err)
	}
	return nil
}

// GetByID возвращает отзыв по идентификатору.
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	return common.GetByID[models.Review](ctx, r.db, "reviews", id, common.ErrNotFound)
}

// Submit заполняет ожидающий отзыв оценкой и комментарием.
func (r *ReviewRepository) Submit(ctx context.Context, commissionID, reviewerID uuid.UUID, rating int, comment *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reviews SET rating = $3, comment = $4, status = 'submitted', updated_at = NOW()
		WHERE commission_id = $1 AND reviewer_id = $2 AND status = 'pending'
	`, commissionID, reviewerID, rating, comment)
	if err != nil {
		return fmt.Errorf("review repository: submit %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("review repository: submit rows affected %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNoRowsAffected
	}
	return nil
}

// ListByReviewedID возвращает отзывы о пользователе.
func (r *ReviewRepository) ListByReviewedID(ctx context.Context, reviewedID uuid.UUID, limit, offset int) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE reviewed_id = $1 AND status = 'submitted'
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, reviewedID, limit, offset)
	return reviews, err
}

// ListByCommission возвращает отзывы по комиссии.
func (r *ReviewRepository) ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE commission_id = $1 ORDER BY created_at
	`, commissionID)
	return reviews, err
}

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository/common"
)

// ReviewRepository описывает хранилище отзывов.
type ReviewRepository interface {
	Submit(ctx context.Context, commissionID, reviewerID uuid.UUID, rating int, comment *string) error
	ListByReviewedID(ctx context.Context, reviewedID uuid.UUID, limit, offset int) ([]models.Review, error)
	ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.Review, error)
}

// ReviewService заполняет ожидающие отзывы, созданные при завершении комиссии.
type ReviewService struct {
	repo ReviewRepository
}

// NewReviewService создаёт сервис отзывов.
func NewReviewService(repo ReviewRepository) *ReviewService {
	return &ReviewService{repo: repo}
}

// SubmitReview заполняет ожидающий отзыв. Заполнить можно ровно один раз;
// отзыв без завершённой комиссии не существует.
func (s *ReviewService) SubmitReview(ctx context.Context, commissionID, reviewerID uuid.UUID, rating int, comment *string) error {
	if rating < 1 || rating > 5 {
		return apperror.New(apperror.ErrCodeValidation, "рейтинг должен быть от 1 до 5")
	}

	if err := s.repo.Submit(ctx, commissionID, reviewerID, rating, comment); err != nil {
		if errors.Is(err, common.ErrNoRowsAffected) {
			return apperror.New(apperror.ErrCodeInvalidState, "отзыв уже оставлен или комиссия не завершена")
		}
		return err
	}
	return nil
}

// ListUserReviews возвращает отзывы о пользователе.
func (s *ReviewService) ListUserReviews(ctx context.Context, reviewedID uuid.UUID, limit, offset int) ([]models.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByReviewedID(ctx, reviewedID, limit, offset)
}

// ListCommissionReviews возвращает отзывы по комиссии.
func (s *ReviewService) ListCommissionReviews(ctx context.Context, commissionID uuid.UUID) ([]models.Review, error) {
	return s.repo.ListByCommission(ctx, commissionID)
}

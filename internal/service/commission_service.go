package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/logger"
	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
)

// CommissionRepository описывает взаимодействие сервиса с хранилищем комиссий.
type CommissionRepository interface {
	Create(ctx context.Context, commission *models.Commission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Commission, error)
	ListByArtist(ctx context.Context, artistID uuid.UUID, limit, offset int) ([]models.Commission, error)
	AcceptPending(ctx context.Context, id uuid.UUID, finalPrice *float64) error
	CompleteInProgress(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	DeleteDeclined(ctx context.Context, id uuid.UUID) error
}

// AdmissionChecker решает, принимает ли художник новые комиссии.
type AdmissionChecker interface {
	CanAdmit(ctx context.Context, artistID uuid.UUID) (*AdmissionDecision, error)
}

// ReviewCreator создаёт ожидающие отзывы при завершении комиссии.
type ReviewCreator interface {
	CreatePendingPair(ctx context.Context, commissionID, clientID, artistID uuid.UUID) error
}

// Notifier отправляет best-effort уведомления участникам.
type Notifier interface {
	NotifyQuiet(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// CreateCommissionInput — параметры нового запроса на комиссию.
type CreateCommissionInput struct {
	ArtistID          uuid.UUID
	ArtworkID         *uuid.UUID
	Description       string
	Budget            float64
	PaymentType       string
	DepositPercentage float64
	MaxRevisionCount  int
}

// CommissionService управляет жизненным циклом комиссии:
// pending -> in_progress -> completed, pending -> declined (с удалением),
// {pending, in_progress} -> cancelled.
type CommissionService struct {
	repo      CommissionRepository
	admission AdmissionChecker
	reviews   ReviewCreator
	notifier  Notifier
}

// NewCommissionService создаёт сервис комиссий.
func NewCommissionService(repo CommissionRepository, admission AdmissionChecker, reviews ReviewCreator, notifier Notifier) *CommissionService {
	return &CommissionService{repo: repo, admission: admission, reviews: reviews, notifier: notifier}
}

// CreateCommission создаёт запрос на комиссию после проверки admission gate.
func (s *CommissionService) CreateCommission(ctx context.Context, clientID uuid.UUID, input CreateCommissionInput) (*models.Commission, error) {
	if clientID == input.ArtistID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя заказать комиссию у самого себя")
	}
	if input.Budget <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "бюджет должен быть положительным")
	}
	if _, ok := models.ValidPaymentTypes[input.PaymentType]; !ok || input.PaymentType == models.PaymentTypeTip {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый тип оплаты")
	}
	if input.PaymentType == models.PaymentTypeDeposit && (input.DepositPercentage <= 0 || input.DepositPercentage >= 100) {
		return nil, apperror.New(apperror.ErrCodeValidation, "процент депозита должен быть в диапазоне (0, 100)")
	}
	if input.MaxRevisionCount < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "лимит правок не может быть отрицательным")
	}

	decision, err := s.admission.CanAdmit(ctx, input.ArtistID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperror.New(apperror.ErrCodeConflict, decision.Reason)
	}

	commission := &models.Commission{
		ClientID:          clientID,
		ArtistID:          input.ArtistID,
		ArtworkID:         input.ArtworkID,
		Description:       input.Description,
		Budget:            input.Budget,
		PaymentType:       input.PaymentType,
		DepositPercentage: input.DepositPercentage,
		MaxRevisionCount:  input.MaxRevisionCount,
		IsWaitlisted:      decision.Waitlisted,
	}
	if err := s.repo.Create(ctx, commission); err != nil {
		return nil, err
	}

	s.notifier.NotifyQuiet(ctx, commission.ArtistID, "commission_requested", commission)
	return commission, nil
}

// GetCommission возвращает комиссию участнику сделки.
func (s *CommissionService) GetCommission(ctx context.Context, id, userID uuid.UUID) (*models.Commission, error) {
	commission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCommissionNotFound) {
			return nil, apperror.ErrCommissionNotFound
		}
		return nil, err
	}
	if !commission.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return commission, nil
}

// ListCommissions возвращает комиссии пользователя в запрошенной роли.
func (s *CommissionService) ListCommissions(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]models.Commission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if role == "artist" {
		return s.repo.ListByArtist(ctx, userID, limit, offset)
	}
	return s.repo.ListByClient(ctx, userID, limit, offset)
}

// Accept принимает комиссию: pending -> in_progress, фиксируется итоговая цена.
// Повторный accept идемпотентен на уровне хранилища и возвращает конфликт состояния.
func (s *CommissionService) Accept(ctx context.Context, id, artistID uuid.UUID, finalPrice *float64) (*models.Commission, error) {
	commission, err := s.GetCommission(ctx, id, artistID)
	if err != nil {
		return nil, err
	}
	if commission.ArtistID != artistID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "принять комиссию может только художник")
	}
	if finalPrice != nil && *finalPrice <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "итоговая цена должна быть положительной")
	}

	if err := s.repo.AcceptPending(ctx, id, finalPrice); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "комиссия уже не ожидает принятия")
		}
		return nil, err
	}

	s.notifier.NotifyQuiet(ctx, commission.ClientID, "commission_accepted", map[string]any{"commission_id": id})
	return s.repo.GetByID(ctx, id)
}

// Decline отклоняет запрос на комиссию. Операция разрушительна: чат,
// участники, этапы и сама запись удаляются одной транзакцией; платёжные
// транзакции остаются для аудита.
func (s *CommissionService) Decline(ctx context.Context, id, artistID uuid.UUID) error {
	commission, err := s.GetCommission(ctx, id, artistID)
	if err != nil {
		return err
	}
	if commission.ArtistID != artistID {
		return apperror.New(apperror.ErrCodeForbidden, "отклонить комиссию может только художник")
	}

	if err := s.repo.DeleteDeclined(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "отклонить можно только ожидающую комиссию")
		}
		return err
	}

	s.notifier.NotifyQuiet(ctx, commission.ClientID, "commission_declined", map[string]any{"commission_id": id})
	return nil
}

// Cancel отменяет комиссию. Доступно только клиенту из pending или in_progress.
func (s *CommissionService) Cancel(ctx context.Context, id, clientID uuid.UUID) error {
	commission, err := s.GetCommission(ctx, id, clientID)
	if err != nil {
		return err
	}
	if commission.ClientID != clientID {
		return apperror.New(apperror.ErrCodeForbidden, "отменить комиссию может только клиент")
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "комиссию уже нельзя отменить")
		}
		return err
	}

	s.notifier.NotifyQuiet(ctx, commission.ArtistID, "commission_cancelled", map[string]any{"commission_id": id})
	return nil
}

// Complete завершает комиссию: in_progress -> completed. После перехода
// создаётся пара ожидающих отзывов, а release escrow становится допустимым.
func (s *CommissionService) Complete(ctx context.Context, id, artistID uuid.UUID) (*models.Commission, error) {
	commission, err := s.GetCommission(ctx, id, artistID)
	if err != nil {
		return nil, err
	}
	if commission.ArtistID != artistID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "завершить комиссию может только художник")
	}

	if err := s.repo.CompleteInProgress(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "завершить можно только комиссию в работе")
		}
		return nil, err
	}

	// Отзывы и уведомления не влияют на исход завершения.
	if err := s.reviews.CreatePendingPair(ctx, id, commission.ClientID, commission.ArtistID); err != nil {
		logger.Log.WithError(err).WithField("commission_id", id).Warn("не удалось создать ожидающие отзывы")
	}
	s.notifier.NotifyQuiet(ctx, commission.ClientID, "commission_completed", map[string]any{"commission_id": id})

	return s.repo.GetByID(ctx, id)
}

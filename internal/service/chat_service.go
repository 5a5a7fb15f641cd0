package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
)

// ConversationRepository описывает хранилище чатов комиссий.
type ConversationRepository interface {
	GetByCommission(ctx context.Context, commissionID uuid.UUID) (*models.Conversation, error)
	AddMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error)
}

// CommissionGetter — минимальный доступ к комиссии для проверки участия.
type CommissionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
}

// ChatService обслуживает переписку сторон комиссии. Чат создаётся вместе
// с комиссией и умирает вместе с ней при decline.
type ChatService struct {
	repo        ConversationRepository
	commissions CommissionGetter
	notifier    Notifier
}

// NewChatService создаёт сервис чата.
func NewChatService(repo ConversationRepository, commissions CommissionGetter, notifier Notifier) *ChatService {
	return &ChatService{repo: repo, commissions: commissions, notifier: notifier}
}

func (s *ChatService) conversationFor(ctx context.Context, commissionID, userID uuid.UUID) (*models.Conversation, *models.Commission, error) {
	commission, err := s.commissions.GetByID(ctx, commissionID)
	if err != nil {
		if errors.Is(err, repository.ErrCommissionNotFound) {
			return nil, nil, apperror.ErrCommissionNotFound
		}
		return nil, nil, err
	}
	if !commission.IsParticipant(userID) {
		return nil, nil, apperror.ErrForbidden
	}

	conv, err := s.repo.GetByCommission(ctx, commissionID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, nil, apperror.New(apperror.ErrCodeNotFound, "чат не найден")
		}
		return nil, nil, err
	}
	return conv, commission, nil
}

// SendMessage добавляет сообщение в чат комиссии.
func (s *ChatService) SendMessage(ctx context.Context, commissionID, authorID uuid.UUID, content string) (*models.Message, error) {
	if content == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "сообщение не может быть пустым")
	}

	conv, commission, err := s.conversationFor(ctx, commissionID, authorID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		AuthorID:       authorID,
		Content:        content,
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	recipient := commission.ClientID
	if authorID == commission.ClientID {
		recipient = commission.ArtistID
	}
	s.notifier.NotifyQuiet(ctx, recipient, "new_message", msg)

	return msg, nil
}

// ListMessages возвращает сообщения чата комиссии с пагинацией.
func (s *ChatService) ListMessages(ctx context.Context, commissionID, userID uuid.UUID, limit, offset int) ([]models.Message, error) {
	conv, _, err := s.conversationFor(ctx, commissionID, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMessages(ctx, conv.ID, limit, offset)
}

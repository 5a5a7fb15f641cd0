package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artcommission-backend/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

type ConversationRepository struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByCommission возвращает чат комиссии.
func (r *ConversationRepository) GetByCommission(ctx context.Context, commissionID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE commission_id = $1`, commissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation repository: get by commission %w", err)
	}
	return &conv, nil
}

// AddMessage добавляет сообщение в чат.
func (r *ConversationRepository) AddMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (conversation_id, author_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	row := r.db.QueryRowxContext(ctx, query, msg.ConversationID, msg.AuthorID, msg.Content)
	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("conversation repository: add message %w", err)
	}
	return nil
}

// ListMessages возвращает сообщения чата с пагинацией.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	return messages, err
}

// CountMessages возвращает количество сообщений в чате.
func (r *ConversationRepository) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("conversation repository: count messages %w", err)
	}
	return count, nil
}

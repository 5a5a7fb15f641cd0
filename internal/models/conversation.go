package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation описывает чат между клиентом и художником по комиссии.
type Conversation struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CommissionID *uuid.UUID `db:"commission_id" json:"commission_id,omitempty"`
	ClientID     uuid.UUID  `db:"client_id" json:"client_id"`
	ArtistID     uuid.UUID  `db:"artist_id" json:"artist_id"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ConversationParticipant описывает участника чата.
type ConversationParticipant struct {
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
}

// Message описывает сообщение в чате.
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	AuthorID       uuid.UUID `db:"author_id" json:"author_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Notification хранит уведомление пользователя.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Review описывает отзыв по завершённой комиссии.
// Создаётся в статусе pending сразу после завершения, заполняется позже.
type Review struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CommissionID uuid.UUID `db:"commission_id" json:"commission_id"`
	ReviewerID   uuid.UUID `db:"reviewer_id" json:"reviewer_id"`
	ReviewedID   uuid.UUID `db:"reviewed_id" json:"reviewed_id"`
	Rating       *int      `db:"rating" json:"rating,omitempty"`
	Comment      *string   `db:"comment" json:"comment,omitempty"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

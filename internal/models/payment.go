package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentTransaction описывает одну попытку реального платежа по комиссии.
// Строка создаётся в статусе pending до открытия заказа у провайдера,
// так что деньги не могут двигаться без локальной записи.
type PaymentTransaction struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	CommissionID        *uuid.UUID      `db:"commission_id" json:"commission_id,omitempty"`
	TransactionType     string          `db:"transaction_type" json:"transaction_type"`
	Amount              float64         `db:"amount" json:"amount"`
	Status              string          `db:"status" json:"status"`
	Provider            string          `db:"provider" json:"provider"`
	ProviderOrderID     string          `db:"provider_order_id" json:"provider_order_id"`
	ProviderCaptureID   *string         `db:"provider_capture_id" json:"provider_capture_id,omitempty"`
	PlatformFee         float64         `db:"platform_fee" json:"platform_fee"`
	ArtistPayout        float64         `db:"artist_payout" json:"artist_payout"`
	PayerID             uuid.UUID       `db:"payer_id" json:"payer_id"`
	RecipientID         uuid.UUID       `db:"recipient_id" json:"recipient_id"`
	CorrelationMetadata json.RawMessage `db:"correlation_metadata" json:"correlation_metadata,omitempty"`
	Transferred         bool            `db:"transferred" json:"transferred"`
	TransferID          *string         `db:"transfer_id" json:"transfer_id,omitempty"`
	PaidAt              *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// ArtistSettings описывает настройки приёма заказов художника.
type ArtistSettings struct {
	UserID            uuid.UUID `db:"user_id" json:"user_id"`
	MaxQueueSlots     int       `db:"max_queue_slots" json:"max_queue_slots"`
	IsOpen            bool      `db:"is_open" json:"is_open"`
	CommissionsPaused bool      `db:"commissions_paused" json:"commissions_paused"`
	AllowWaitlist     bool      `db:"allow_waitlist" json:"allow_waitlist"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

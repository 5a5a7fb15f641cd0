package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone описывает этап оплаты комиссии.
type Milestone struct {
	ID                        uuid.UUID  `db:"id" json:"id"`
	CommissionID              uuid.UUID  `db:"commission_id" json:"commission_id"`
	MilestoneNumber           int        `db:"milestone_number" json:"milestone_number"`
	Title                     string     `db:"title" json:"title"`
	Description               *string    `db:"description" json:"description,omitempty"`
	Amount                    float64    `db:"amount" json:"amount"`
	Percentage                float64    `db:"percentage" json:"percentage"`
	PaymentStatus             string     `db:"payment_status" json:"payment_status"`
	IsLocked                  bool       `db:"is_locked" json:"is_locked"`
	PaymentRequiredBeforeWork bool       `db:"payment_required_before_work" json:"payment_required_before_work"`
	ProgressUpdateID          *uuid.UUID `db:"progress_update_id" json:"progress_update_id,omitempty"`
	PaymentTransactionID      *uuid.UUID `db:"payment_transaction_id" json:"payment_transaction_id,omitempty"`
	PaidAt                    *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`
}

// ProgressUpdate фиксирует сданную работу по этапу, ожидающую приёмки клиентом.
type ProgressUpdate struct {
	ID             uuid.UUID `db:"id" json:"id"`
	CommissionID   uuid.UUID `db:"commission_id" json:"commission_id"`
	MilestoneID    uuid.UUID `db:"milestone_id" json:"milestone_id"`
	ArtistID       uuid.UUID `db:"artist_id" json:"artist_id"`
	ImageURL       string    `db:"image_url" json:"image_url"`
	Note           *string   `db:"note" json:"note,omitempty"`
	ApprovalStatus string    `db:"approval_status" json:"approval_status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MilestoneStageTemplate описывает шаблон этапа (скетч, лайн, цвет и т.д.).
type MilestoneStageTemplate struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Title             string    `db:"title" json:"title"`
	DefaultPercentage float64   `db:"default_percentage" json:"default_percentage"`
	SortOrder         int       `db:"sort_order" json:"sort_order"`
}

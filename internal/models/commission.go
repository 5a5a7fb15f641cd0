package models

import (
	"time"

	"github.com/google/uuid"
)

// Commission описывает заказ на творческую работу между клиентом и художником.
type Commission struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	ClientID              uuid.UUID  `db:"client_id" json:"client_id"`
	ArtistID              uuid.UUID  `db:"artist_id" json:"artist_id"`
	ArtworkID             *uuid.UUID `db:"artwork_id" json:"artwork_id,omitempty"`
	Description           string     `db:"description" json:"description"`
	Budget                float64    `db:"budget" json:"budget"`
	FinalPrice            *float64   `db:"final_price" json:"final_price,omitempty"`
	Status                string     `db:"status" json:"status"`
	PaymentType           string     `db:"payment_type" json:"payment_type"`
	PaymentStatus         string     `db:"payment_status" json:"payment_status"`
	EscrowStatus          string     `db:"escrow_status" json:"escrow_status"`
	DepositPercentage     float64    `db:"deposit_percentage" json:"deposit_percentage"`
	TotalPaid             float64    `db:"total_paid" json:"total_paid"`
	MilestonePlanConfirmed bool      `db:"milestone_plan_confirmed" json:"milestone_plan_confirmed"`
	CurrentMilestoneID    *uuid.UUID `db:"current_milestone_id" json:"current_milestone_id,omitempty"`
	CurrentRevisionCount  int        `db:"current_revision_count" json:"current_revision_count"`
	MaxRevisionCount      int        `db:"max_revision_count" json:"max_revision_count"`
	IsWaitlisted          bool       `db:"is_waitlisted" json:"is_waitlisted"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
	// Связанные данные (загружаются отдельно)
	Milestones []Milestone `json:"milestones,omitempty"`
}

// Price возвращает согласованную цену комиссии, либо бюджет, если цена ещё не зафиксирована.
func (c *Commission) Price() float64 {
	if c.FinalPrice != nil && *c.FinalPrice > 0 {
		return *c.FinalPrice
	}
	return c.Budget
}

// IsParticipant проверяет, является ли пользователь стороной сделки.
func (c *Commission) IsParticipant(userID uuid.UUID) bool {
	return c.ClientID == userID || c.ArtistID == userID
}

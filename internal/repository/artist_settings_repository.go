package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artcommission-backend/internal/models"
)

type ArtistSettingsRepository struct {
	db *sqlx.DB
}

func NewArtistSettingsRepository(db *sqlx.DB) *ArtistSettingsRepository {
	return &ArtistSettingsRepository{db: db}
}

// GetByUserID возвращает настройки приёма заказов, создаёт дефолтные если не существует.
func (r *ArtistSettingsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ArtistSettings, error) {
	var settings models.ArtistSettings
	query := `
		INSERT INTO artist_settings (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, max_queue_slots, is_open, commissions_paused, allow_waitlist, updated_at
	`
	if err := r.db.GetContext(ctx, &settings, query, userID); err != nil {
		return nil, fmt.Errorf("artist settings repository: get %w", err)
	}
	return &settings, nil
}

// Update сохраняет настройки приёма заказов художника.
func (r *ArtistSettingsRepository) Update(ctx context.Context, settings *models.ArtistSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artist_settings (user_id, max_queue_slots, is_open, commissions_paused, allow_waitlist, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			max_queue_slots = EXCLUDED.max_queue_slots,
			is_open = EXCLUDED.is_open,
			commissions_paused = EXCLUDED.commissions_paused,
			allow_waitlist = EXCLUDED.allow_waitlist,
			updated_at = NOW()
	`, settings.UserID, settings.MaxQueueSlots, settings.IsOpen, settings.CommissionsPaused, settings.AllowWaitlist)
	if err != nil {
		return fmt.Errorf("artist settings repository: update %w", err)
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/models"
)

// ArtistSettingsRepository описывает хранилище настроек приёма заказов.
type ArtistSettingsRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ArtistSettings, error)
	Update(ctx context.Context, settings *models.ArtistSettings) error
}

// CommissionCounter считает активные комиссии художника.
type CommissionCounter interface {
	CountActiveByArtist(ctx context.Context, artistID uuid.UUID) (int, error)
}

// AdmissionDecision — результат проверки приёма новой комиссии.
type AdmissionDecision struct {
	Allowed    bool   `json:"allowed"`
	Waitlisted bool   `json:"waitlisted"`
	Reason     string `json:"reason,omitempty"`
	QueueUsed  int    `json:"queue_used"`
	QueueSlots int    `json:"queue_slots"`
}

// AdmissionService решает, может ли художник принять новую комиссию:
// закрыт/на паузе -> отказ, очередь заполнена -> waitlist либо отказ.
// Проверка счётчика и последующая вставка комиссии не атомарны: небольшой
// перебор очереди при одновременных запросах допускается.
type AdmissionService struct {
	settings    ArtistSettingsRepository
	commissions CommissionCounter
}

// NewAdmissionService создаёт сервис приёма заказов.
func NewAdmissionService(settings ArtistSettingsRepository, commissions CommissionCounter) *AdmissionService {
	return &AdmissionService{settings: settings, commissions: commissions}
}

// CanAdmit проверяет, принимает ли художник новые комиссии прямо сейчас.
func (s *AdmissionService) CanAdmit(ctx context.Context, artistID uuid.UUID) (*AdmissionDecision, error) {
	settings, err := s.settings.GetByUserID(ctx, artistID)
	if err != nil {
		return nil, err
	}

	active, err := s.commissions.CountActiveByArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}

	decision := &AdmissionDecision{
		QueueUsed:  active,
		QueueSlots: settings.MaxQueueSlots,
	}

	if !settings.IsOpen || settings.CommissionsPaused {
		decision.Reason = "художник не принимает новые заказы"
		return decision, nil
	}

	if active >= settings.MaxQueueSlots {
		if settings.AllowWaitlist {
			decision.Allowed = true
			decision.Waitlisted = true
			return decision, nil
		}
		decision.Reason = "очередь художника заполнена"
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// GetSettings возвращает настройки приёма заказов художника.
func (s *AdmissionService) GetSettings(ctx context.Context, artistID uuid.UUID) (*models.ArtistSettings, error) {
	return s.settings.GetByUserID(ctx, artistID)
}

// UpdateSettings сохраняет настройки приёма заказов.
func (s *AdmissionService) UpdateSettings(ctx context.Context, settings *models.ArtistSettings) error {
	if settings.MaxQueueSlots < 1 {
		return fmt.Errorf("очередь должна вмещать хотя бы один заказ")
	}
	return s.settings.Update(ctx, settings)
}

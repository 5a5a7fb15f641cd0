package service

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
	"github.com/ignatzorin/artcommission-backend/internal/repository/common"
)

// Допуск на накопленную ошибку округления процентов плана.
const percentageTolerance = 0.01

// MilestoneRepository описывает хранилище этапов и шаблонов.
type MilestoneRepository interface {
	InsertPlan(ctx context.Context, commissionID uuid.UUID, milestones []models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.Milestone, error)
	Update(ctx context.Context, m *models.Milestone) error
	CreateProgressUpdate(ctx context.Context, update *models.ProgressUpdate) error
	GetProgressUpdate(ctx context.Context, id uuid.UUID) (*models.ProgressUpdate, error)
	SetApprovalStatus(ctx context.Context, id uuid.UUID, status string) error
	ListStageTemplates(ctx context.Context) ([]models.MilestoneStageTemplate, error)
}

// CommissionRepoForMilestones — минимальный контракт с хранилищем комиссий.
type CommissionRepoForMilestones interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	ConfirmMilestonePlan(ctx context.Context, id uuid.UUID) error
	SetCurrentMilestone(ctx context.Context, id uuid.UUID, milestoneID *uuid.UUID) error
	IncrementRevisionCount(ctx context.Context, id uuid.UUID) error
}

// CustomMilestoneInput — один этап пользовательского плана.
type CustomMilestoneInput struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Percentage  float64  `json:"percentage"`
	Amount      *float64 `json:"amount,omitempty"`
	// PaymentRequiredBeforeWork требует оплату этапа до начала работы над ним.
	PaymentRequiredBeforeWork bool `json:"payment_required_before_work"`
}

// StartMilestoneResult — итог попытки начать этап. RequiresPayment сообщает
// фронтенду, что этап требует предоплаты, и нужно перенаправить на оплату.
type StartMilestoneResult struct {
	Milestone       *models.Milestone `json:"milestone,omitempty"`
	RequiresPayment bool              `json:"requires_payment"`
}

// MilestoneService управляет планом этапов: генерация, правка, подтверждение,
// старт и сдача работы на приёмку.
type MilestoneService struct {
	repo        MilestoneRepository
	commissions CommissionRepoForMilestones
	notifier    Notifier
}

// NewMilestoneService создаёт сервис этапов.
func NewMilestoneService(repo MilestoneRepository, commissions CommissionRepoForMilestones, notifier Notifier) *MilestoneService {
	return &MilestoneService{repo: repo, commissions: commissions, notifier: notifier}
}

func (s *MilestoneService) getCommissionFor(ctx context.Context, commissionID, userID uuid.UUID) (*models.Commission, error) {
	commission, err := s.commissions.GetByID(ctx, commissionID)
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

// GeneratePlan строит план этапов по шаблонам стадий, распределяя цену
// комиссии по default_percentage. Отклоняется, если план уже существует.
func (s *MilestoneService) GeneratePlan(ctx context.Context, commissionID, userID uuid.UUID) ([]models.Milestone, error) {
	commission, err := s.getCommissionFor(ctx, commissionID, userID)
	if err != nil {
		return nil, err
	}
	if commission.Status != models.CommissionStatusInProgress {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "план этапов создаётся только для комиссии в работе")
	}

	templates, err := s.repo.ListStageTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, apperror.New(apperror.ErrCodeInternal, "шаблоны этапов не настроены")
	}

	price := commission.Price()
	milestones := make([]models.Milestone, 0, len(templates))
	for i, tpl := range templates {
		milestones = append(milestones, models.Milestone{
			MilestoneNumber: i + 1,
			Title:           tpl.Title,
			Percentage:      tpl.DefaultPercentage,
			Amount:          round2(price * tpl.DefaultPercentage / 100),
		})
	}

	if err := s.insertPlan(ctx, commissionID, milestones); err != nil {
		return nil, err
	}
	return s.repo.ListByCommission(ctx, commissionID)
}

// CreateCustomPlan сохраняет план этапов, заданный явно. Суммы, не указанные
// вызывающим, вычисляются из процентов и цены комиссии.
func (s *MilestoneService) CreateCustomPlan(ctx context.Context, commissionID, userID uuid.UUID, inputs []CustomMilestoneInput) ([]models.Milestone, error) {
	commission, err := s.getCommissionFor(ctx, commissionID, userID)
	if err != nil {
		return nil, err
	}
	if commission.Status != models.CommissionStatusInProgress {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "план этапов создаётся только для комиссии в работе")
	}
	if len(inputs) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "план должен содержать хотя бы один этап")
	}

	price := commission.Price()
	milestones := make([]models.Milestone, 0, len(inputs))
	for i, input := range inputs {
		if input.Title == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "у этапа должно быть название")
		}
		if input.Percentage <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, "процент этапа должен быть положительным")
		}
		amount := round2(price * input.Percentage / 100)
		if input.Amount != nil {
			amount = *input.Amount
		}
		if amount <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, "сумма этапа должна быть положительной")
		}
		milestones = append(milestones, models.Milestone{
			MilestoneNumber:           i + 1,
			Title:                     input.Title,
			Description:               input.Description,
			Percentage:                input.Percentage,
			Amount:                    amount,
			PaymentRequiredBeforeWork: input.PaymentRequiredBeforeWork,
		})
	}

	if err := s.insertPlan(ctx, commissionID, milestones); err != nil {
		return nil, err
	}
	return s.repo.ListByCommission(ctx, commissionID)
}

func (s *MilestoneService) insertPlan(ctx context.Context, commissionID uuid.UUID, milestones []models.Milestone) error {
	if err := s.repo.InsertPlan(ctx, commissionID, milestones); err != nil {
		if errors.Is(err, repository.ErrPlanAlreadyExists) {
			return apperror.New(apperror.ErrCodeConflict, "план этапов уже существует")
		}
		return err
	}
	return nil
}

// ListMilestones возвращает этапы комиссии участнику.
func (s *MilestoneService) ListMilestones(ctx context.Context, commissionID, userID uuid.UUID) ([]models.Milestone, error) {
	if _, err := s.getCommissionFor(ctx, commissionID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByCommission(ctx, commissionID)
}

// EditMilestone правит этап. Разрешено только до подтверждения плана и
// только для неоплаченных этапов.
func (s *MilestoneService) EditMilestone(ctx context.Context, milestoneID, userID uuid.UUID, title string, description *string, amount, percentage float64) (*models.Milestone, error) {
	milestone, err := s.repo.GetByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}

	commission, err := s.getCommissionFor(ctx, milestone.CommissionID, userID)
	if err != nil {
		return nil, err
	}
	if commission.MilestonePlanConfirmed {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "подтверждённый план нельзя править")
	}
	if title == "" || amount <= 0 || percentage <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректные параметры этапа")
	}

	milestone.Title = title
	milestone.Description = description
	milestone.Amount = amount
	milestone.Percentage = percentage
	if err := s.repo.Update(ctx, milestone); err != nil {
		if errors.Is(err, repository.ErrMilestoneAlreadyPaid) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "оплаченный этап нельзя править")
		}
		return nil, err
	}
	return milestone, nil
}

// ConfirmPlan подтверждает план этапов. Только клиент, ровно один раз,
// и только если проценты сходятся в 100 с допуском на округление.
func (s *MilestoneService) ConfirmPlan(ctx context.Context, commissionID, userID uuid.UUID) error {
	commission, err := s.getCommissionFor(ctx, commissionID, userID)
	if err != nil {
		return err
	}
	if commission.ClientID != userID {
		return apperror.New(apperror.ErrCodeForbidden, "подтвердить план может только клиент")
	}

	milestones, err := s.repo.ListByCommission(ctx, commissionID)
	if err != nil {
		return err
	}
	if len(milestones) == 0 {
		return apperror.New(apperror.ErrCodeInvalidState, "план этапов ещё не создан")
	}

	var total float64
	for _, m := range milestones {
		total += m.Percentage
	}
	if math.Abs(total-100) > percentageTolerance {
		return apperror.New(apperror.ErrCodeValidation, "сумма процентов этапов должна равняться 100")
	}

	if err := s.commissions.ConfirmMilestonePlan(ctx, commissionID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "план уже подтверждён")
		}
		return err
	}

	s.notifier.NotifyQuiet(ctx, commission.ArtistID, "milestone_plan_confirmed", map[string]any{"commission_id": commissionID})
	return nil
}

// StartMilestone начинает работу над этапом. Только художник, только после
// подтверждения плана и только для разблокированного этапа. Если этап требует
// предоплаты, работа не начинается и вызывающему возвращается requires_payment.
func (s *MilestoneService) StartMilestone(ctx context.Context, milestoneID, userID uuid.UUID) (*StartMilestoneResult, error) {
	milestone, err := s.repo.GetByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}

	commission, err := s.getCommissionFor(ctx, milestone.CommissionID, userID)
	if err != nil {
		return nil, err
	}
	if commission.ArtistID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "начать этап может только художник")
	}
	if !commission.MilestonePlanConfirmed {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "план этапов ещё не подтверждён клиентом")
	}
	if milestone.IsLocked {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап заблокирован: сначала оплачивается предыдущий")
	}
	if milestone.PaymentRequiredBeforeWork && milestone.PaymentStatus != models.MilestonePaid {
		return &StartMilestoneResult{RequiresPayment: true}, nil
	}

	if err := s.commissions.SetCurrentMilestone(ctx, milestone.CommissionID, &milestone.ID); err != nil {
		return nil, err
	}

	s.notifier.NotifyQuiet(ctx, commission.ClientID, "milestone_started", map[string]any{
		"commission_id": milestone.CommissionID,
		"milestone_id":  milestone.ID,
	})
	return &StartMilestoneResult{Milestone: milestone}, nil
}

// CompleteMilestone сдаёт работу по этапу: создаётся контрольная точка
// приёмки со ссылкой на изображение. Разблокировка оплаты этапа от приёмки
// не зависит: оплатой управляет только payment_status.
func (s *MilestoneService) CompleteMilestone(ctx context.Context, milestoneID, userID uuid.UUID, imageURL string, note *string) (*models.ProgressUpdate, error) {
	if imageURL == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "для сдачи этапа нужна ссылка на работу")
	}

	milestone, err := s.repo.GetByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}

	commission, err := s.getCommissionFor(ctx, milestone.CommissionID, userID)
	if err != nil {
		return nil, err
	}
	if commission.ArtistID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "сдать этап может только художник")
	}
	if milestone.IsLocked {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап заблокирован")
	}

	update := &models.ProgressUpdate{
		CommissionID: milestone.CommissionID,
		MilestoneID:  milestone.ID,
		ArtistID:     userID,
		ImageURL:     imageURL,
		Note:         note,
	}
	if err := s.repo.CreateProgressUpdate(ctx, update); err != nil {
		return nil, err
	}

	s.notifier.NotifyQuiet(ctx, commission.ClientID, "milestone_delivered", update)
	return update, nil
}

// ApproveProgress принимает сданную работу. Только клиент.
func (s *MilestoneService) ApproveProgress(ctx context.Context, progressUpdateID, userID uuid.UUID) error {
	update, commission, err := s.getProgressForClient(ctx, progressUpdateID, userID)
	if err != nil {
		return err
	}

	if err := s.repo.SetApprovalStatus(ctx, update.ID, models.ApprovalStatusApproved); err != nil {
		if errors.Is(err, common.ErrNoRowsAffected) {
			return apperror.New(apperror.ErrCodeInvalidState, "приёмка уже завершена")
		}
		return err
	}

	s.notifier.NotifyQuiet(ctx, commission.ArtistID, "progress_approved", map[string]any{"progress_update_id": update.ID})
	return nil
}

// RejectProgress отклоняет сданную работу и расходует одну правку.
// При исчерпанном лимите правок отклонение невозможно.
func (s *MilestoneService) RejectProgress(ctx context.Context, progressUpdateID, userID uuid.UUID) error {
	update, commission, err := s.getProgressForClient(ctx, progressUpdateID, userID)
	if err != nil {
		return err
	}

	if err := s.commissions.IncrementRevisionCount(ctx, commission.ID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "лимит правок исчерпан")
		}
		return err
	}

	if err := s.repo.SetApprovalStatus(ctx, update.ID, models.ApprovalStatusRejected); err != nil {
		if errors.Is(err, common.ErrNoRowsAffected) {
			return apperror.New(apperror.ErrCodeInvalidState, "приёмка уже завершена")
		}
		return err
	}

	s.notifier.NotifyQuiet(ctx, commission.ArtistID, "progress_rejected", map[string]any{"progress_update_id": update.ID})
	return nil
}

func (s *MilestoneService) getProgressForClient(ctx context.Context, progressUpdateID, userID uuid.UUID) (*models.ProgressUpdate, *models.Commission, error) {
	update, err := s.repo.GetProgressUpdate(ctx, progressUpdateID)
	if err != nil {
		if errors.Is(err, repository.ErrProgressUpdateNotFound) {
			return nil, nil, apperror.New(apperror.ErrCodeNotFound, "сданная работа не найдена")
		}
		return nil, nil, err
	}

	commission, err := s.getCommissionFor(ctx, update.CommissionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if commission.ClientID != userID {
		return nil, nil, apperror.New(apperror.ErrCodeForbidden, "принять работу может только клиент")
	}
	return update, commission, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

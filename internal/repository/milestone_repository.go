package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/repository/common"
)

var (
	ErrMilestoneNotFound      = errors.New("milestone not found")
	ErrPlanAlreadyExists      = errors.New("milestone plan already exists")
	ErrMilestoneAlreadyPaid   = errors.New("milestone already paid")
	ErrProgressUpdateNotFound = errors.New("progress update not found")
)

type MilestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// InsertPlan сохраняет план этапов одной транзакцией: пакетная вставка строк,
// разблокировка первого этапа и привязка его к комиссии как текущего.
// Возвращает ErrPlanAlreadyExists, если у комиссии уже есть этапы.
func (r *MilestoneRepository) InsertPlan(ctx context.Context, commissionID uuid.UUID, milestones []models.Milestone) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var existing int
		if err := tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM milestones WHERE commission_id = $1`, commissionID); err != nil {
			return fmt.Errorf("milestone repository: count existing %w", err)
		}
		if existing > 0 {
			return ErrPlanAlreadyExists
		}

		inserter := common.NewBatchInserter(tx, `
			INSERT INTO milestones (
				commission_id, milestone_number, title, description, amount,
				percentage, is_locked, payment_required_before_work
			)`, 8, 50)

		for _, m := range milestones {
			// Разблокирован только этап с номером 1, остальные ждут оплаты предыдущего.
			locked := m.MilestoneNumber != 1
			if err := inserter.Add(ctx, commissionID, m.MilestoneNumber, m.Title, m.Description,
				m.Amount, m.Percentage, locked, m.PaymentRequiredBeforeWork); err != nil {
				return err
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return err
		}

		var firstID uuid.UUID
		err := tx.GetContext(ctx, &firstID, `
			SELECT id FROM milestones WHERE commission_id = $1 AND milestone_number = 1
		`, commissionID)
		if err != nil {
			return fmt.Errorf("milestone repository: first milestone %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE commissions SET current_milestone_id = $2, updated_at = NOW() WHERE id = $1
		`, commissionID, firstID)
		if err != nil {
			return fmt.Errorf("milestone repository: link current milestone %w", err)
		}

		return nil
	})
}

// GetByID возвращает этап по идентификатору.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, ErrMilestoneNotFound)
}

// ListByCommission возвращает этапы комиссии в порядке номеров.
func (r *MilestoneRepository) ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE commission_id = $1 ORDER BY milestone_number
	`, commissionID)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list %w", err)
	}
	return milestones, nil
}

// Update обновляет редактируемые поля этапа. Условие payment_status='unpaid'
// защищает от правки уже оплаченного этапа; запрет правки подтверждённого
// плана проверяется на уровне сервиса по флагу комиссии.
func (r *MilestoneRepository) Update(ctx context.Context, m *models.Milestone) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET title = $2, description = $3, amount = $4, percentage = $5, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'unpaid'
	`, m.ID, m.Title, m.Description, m.Amount, m.Percentage)
	if err != nil {
		return fmt.Errorf("milestone repository: update %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("milestone repository: update rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrMilestoneAlreadyPaid
	}
	return nil
}

// LowestUnpaid возвращает неоплаченный этап с наименьшим номером.
func (r *MilestoneRepository) LowestUnpaid(ctx context.Context, commissionID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	err := r.db.GetContext(ctx, &milestone, `
		SELECT * FROM milestones
		WHERE commission_id = $1 AND payment_status = 'unpaid'
		ORDER BY milestone_number
		LIMIT 1
	`, commissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("milestone repository: lowest unpaid %w", err)
	}
	return &milestone, nil
}

// MarkPaid помечает этап оплаченным ровно один раз и привязывает транзакцию.
func (r *MilestoneRepository) MarkPaid(ctx context.Context, id uuid.UUID, transactionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET payment_status = 'paid', is_locked = FALSE,
		    payment_transaction_id = $2, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND payment_status = 'unpaid'
	`, id, transactionID)
	if err != nil {
		return fmt.Errorf("milestone repository: mark paid %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("milestone repository: mark paid rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrMilestoneAlreadyPaid
	}
	return nil
}

// UnlockNext снимает блокировку со следующего неоплаченного этапа.
func (r *MilestoneRepository) UnlockNext(ctx context.Context, commissionID uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	err := r.db.GetContext(ctx, &milestone, `
		UPDATE milestones SET is_locked = FALSE, updated_at = NOW()
		WHERE id = (
			SELECT id FROM milestones
			WHERE commission_id = $1 AND payment_status = 'unpaid'
			ORDER BY milestone_number
			LIMIT 1
		)
		RETURNING *
	`, commissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Все этапы оплачены, разблокировать нечего.
			return nil, nil
		}
		return nil, fmt.Errorf("milestone repository: unlock next %w", err)
	}
	return &milestone, nil
}

// CreateProgressUpdate сохраняет сданную работу и привязывает её к этапу.
func (r *MilestoneRepository) CreateProgressUpdate(ctx context.Context, update *models.ProgressUpdate) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO progress_updates (commission_id, milestone_id, artist_id, image_url, note)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, commission_id, milestone_id, artist_id, image_url, note, approval_status, created_at
		`
		err := tx.GetContext(ctx, update, query,
			update.CommissionID, update.MilestoneID, update.ArtistID, update.ImageURL, update.Note)
		if err != nil {
			return fmt.Errorf("milestone repository: create progress update %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE milestones SET progress_update_id = $2, updated_at = NOW() WHERE id = $1
		`, update.MilestoneID, update.ID)
		if err != nil {
			return fmt.Errorf("milestone repository: link progress update %w", err)
		}

		return nil
	})
}

// GetProgressUpdate возвращает запись о сданной работе.
func (r *MilestoneRepository) GetProgressUpdate(ctx context.Context, id uuid.UUID) (*models.ProgressUpdate, error) {
	return common.GetByID[models.ProgressUpdate](ctx, r.db, "progress_updates", id, ErrProgressUpdateNotFound)
}

// SetApprovalStatus переводит приёмку из pending в approved/rejected один раз.
func (r *MilestoneRepository) SetApprovalStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE progress_updates SET approval_status = $2
		WHERE id = $1 AND approval_status = 'pending'
	`, id, status)
	if err != nil {
		return fmt.Errorf("milestone repository: set approval status %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("milestone repository: approval rows affected %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNoRowsAffected
	}
	return nil
}

// ListStageTemplates возвращает шаблоны этапов в порядке сортировки.
func (r *MilestoneRepository) ListStageTemplates(ctx context.Context) ([]models.MilestoneStageTemplate, error) {
	var templates []models.MilestoneStageTemplate
	err := r.db.SelectContext(ctx, &templates, `
		SELECT * FROM milestone_stage_templates ORDER BY sort_order
	`)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list templates %w", err)
	}
	return templates, nil
}

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
	ErrCommissionNotFound = errors.New("commission not found")
	ErrStateConflict      = errors.New("commission is not in expected state")
)

type CommissionRepository struct {
	db *sqlx.DB
}

func NewCommissionRepository(db *sqlx.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

const commissionColumns = `
	id, client_id, artist_id, artwork_id, description, budget, final_price,
	status, payment_type, payment_status, escrow_status, deposit_percentage,
	total_paid, milestone_plan_confirmed, current_milestone_id,
	current_revision_count, max_revision_count, is_waitlisted, created_at, updated_at
`

// Create сохраняет новую комиссию и сразу создаёт чат между сторонами.
// Чат нужен с момента запроса: обсуждение деталей идёт до принятия заказа.
func (r *CommissionRepository) Create(ctx context.Context, commission *models.Commission) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO commissions (
				client_id, artist_id, artwork_id, description, budget,
				payment_type, deposit_percentage, max_revision_count, is_waitlisted
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING ` + commissionColumns
		err := tx.GetContext(ctx, commission, query,
			commission.ClientID, commission.ArtistID, commission.ArtworkID,
			commission.Description, commission.Budget, commission.PaymentType,
			commission.DepositPercentage, commission.MaxRevisionCount, commission.IsWaitlisted)
		if err != nil {
			return fmt.Errorf("commission repository: create %w", err)
		}

		var conversationID uuid.UUID
		err = tx.GetContext(ctx, &conversationID, `
			INSERT INTO conversations (commission_id, client_id, artist_id)
			VALUES ($1, $2, $3)
			RETURNING id
		`, commission.ID, commission.ClientID, commission.ArtistID)
		if err != nil {
			return fmt.Errorf("commission repository: create conversation %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2), ($1, $3)
		`, conversationID, commission.ClientID, commission.ArtistID)
		if err != nil {
			return fmt.Errorf("commission repository: create participants %w", err)
		}

		return nil
	})
}

// GetByID возвращает комиссию по идентификатору.
func (r *CommissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE id = $1`
	if err := r.db.GetContext(ctx, &commission, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommissionNotFound
		}
		return nil, fmt.Errorf("commission repository: get by id %w", err)
	}
	return &commission, nil
}

// ListByClient возвращает комиссии пользователя как клиента.
func (r *CommissionRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Commission, error) {
	var commissions []models.Commission
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &commissions, query, clientID, limit, offset)
	return commissions, err
}

// ListByArtist возвращает комиссии пользователя как художника.
func (r *CommissionRepository) ListByArtist(ctx context.Context, artistID uuid.UUID, limit, offset int) ([]models.Commission, error) {
	var commissions []models.Commission
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE artist_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &commissions, query, artistID, limit, offset)
	return commissions, err
}

// CountActiveByArtist считает незавершённые комиссии художника для admission gate.
// Намеренно вне транзакции вставки: небольшой перебор очереди при одновременных
// запросах допустим, см. README по слотам очереди.
func (r *CommissionRepository) CountActiveByArtist(ctx context.Context, artistID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM commissions
		WHERE artist_id = $1 AND status IN ('pending', 'in_progress')
	`
	if err := r.db.GetContext(ctx, &count, query, artistID); err != nil {
		return 0, fmt.Errorf("commission repository: count active %w", err)
	}
	return count, nil
}

// AcceptPending переводит комиссию pending -> in_progress одним условным обновлением.
// Повторный accept обновит ноль строк и вернёт ErrStateConflict.
func (r *CommissionRepository) AcceptPending(ctx context.Context, id uuid.UUID, finalPrice *float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commissions
		SET status = 'in_progress',
		    final_price = COALESCE($2, final_price, budget),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, finalPrice)
	if err != nil {
		return fmt.Errorf("commission repository: accept %w", err)
	}
	return requireRowsAffected(result)
}

// CompleteInProgress переводит комиссию in_progress -> completed.
func (r *CommissionRepository) CompleteInProgress(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, id)
	if err != nil {
		return fmt.Errorf("commission repository: complete %w", err)
	}
	return requireRowsAffected(result)
}

// Cancel переводит комиссию в cancelled из pending или in_progress.
func (r *CommissionRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'in_progress')
	`, id)
	if err != nil {
		return fmt.Errorf("commission repository: cancel %w", err)
	}
	return requireRowsAffected(result)
}

// DeleteDeclined выполняет разрушительный decline: удаляет сообщения,
// участников чата, сам чат, этапы и запись комиссии в одной транзакции
// в фиксированном порядке. Платёжные транзакции сохраняются для аудита
// (FK с ON DELETE SET NULL). Комиссия должна быть в статусе pending.
func (r *CommissionRepository) DeleteDeclined(ctx context.Context, id uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM commissions WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCommissionNotFound
			}
			return fmt.Errorf("commission repository: decline lock %w", err)
		}
		if status != models.CommissionStatusPending {
			return ErrStateConflict
		}

		// Дочерние строки удаляются строго снизу вверх.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM messages WHERE conversation_id IN (
				SELECT id FROM conversations WHERE commission_id = $1
			)
		`, id); err != nil {
			return fmt.Errorf("commission repository: decline delete messages %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM conversation_participants WHERE conversation_id IN (
				SELECT id FROM conversations WHERE commission_id = $1
			)
		`, id); err != nil {
			return fmt.Errorf("commission repository: decline delete participants %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE commission_id = $1`, id); err != nil {
			return fmt.Errorf("commission repository: decline delete conversation %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE commission_id = $1`, id); err != nil {
			return fmt.Errorf("commission repository: decline delete milestones %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM commissions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("commission repository: decline delete commission %w", err)
		}

		return nil
	})
}

// ConfirmMilestonePlan подтверждает план этапов ровно один раз.
// Условное обновление гарантирует, что из двух одновременных подтверждений
// пройдёт только одно.
func (r *CommissionRepository) ConfirmMilestonePlan(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET milestone_plan_confirmed = TRUE, updated_at = NOW()
		WHERE id = $1 AND milestone_plan_confirmed = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("commission repository: confirm plan %w", err)
	}
	return requireRowsAffected(result)
}

// SetPaymentState выставляет payment_status и escrow_status комиссии.
func (r *CommissionRepository) SetPaymentState(ctx context.Context, id uuid.UUID, paymentStatus, escrowStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET payment_status = $2, escrow_status = $3, updated_at = NOW()
		WHERE id = $1
	`, id, paymentStatus, escrowStatus)
	if err != nil {
		return fmt.Errorf("commission repository: set payment state %w", err)
	}
	return nil
}

// SetEscrowStatus переводит escrow_status из ожидаемого состояния в новое.
func (r *CommissionRepository) SetEscrowStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET escrow_status = $3, updated_at = NOW()
		WHERE id = $1 AND escrow_status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("commission repository: set escrow status %w", err)
	}
	return requireRowsAffected(result)
}

// SetCurrentMilestone выставляет текущий этап комиссии.
func (r *CommissionRepository) SetCurrentMilestone(ctx context.Context, id uuid.UUID, milestoneID *uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET current_milestone_id = $2, updated_at = NOW() WHERE id = $1
	`, id, milestoneID)
	if err != nil {
		return fmt.Errorf("commission repository: set current milestone %w", err)
	}
	return nil
}

// AddTotalPaid увеличивает суммарно оплаченное по комиссии.
// Вызывается слоем-инициатором после подтверждения платежа, не движком сверки.
func (r *CommissionRepository) AddTotalPaid(ctx context.Context, id uuid.UUID, amount float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET total_paid = total_paid + $2, updated_at = NOW() WHERE id = $1
	`, id, amount)
	if err != nil {
		return fmt.Errorf("commission repository: add total paid %w", err)
	}
	return nil
}

// IncrementRevisionCount увеличивает счётчик использованных правок.
func (r *CommissionRepository) IncrementRevisionCount(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET current_revision_count = current_revision_count + 1, updated_at = NOW()
		WHERE id = $1 AND current_revision_count < max_revision_count
	`, id)
	if err != nil {
		return fmt.Errorf("commission repository: increment revision count %w", err)
	}
	return requireRowsAffected(result)
}

func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commission repository: rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

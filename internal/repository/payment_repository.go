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
	ErrTransactionNotFound = errors.New("payment transaction not found")
	// ErrAlreadyProcessed означает, что условное обновление статуса не затронуло
	// ни одной строки: другой канал доставки уже обработал это событие.
	ErrAlreadyProcessed = errors.New("payment transaction already processed")
)

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет транзакцию в статусе pending. Строка обязана существовать
// до того, как у провайдера откроется заказ и деньги смогут двигаться.
func (r *PaymentRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			commission_id, transaction_type, amount, provider, provider_order_id,
			platform_fee, artist_payout, payer_id, recipient_id, correlation_metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, status, transferred, created_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		tx.CommissionID, tx.TransactionType, tx.Amount, tx.Provider, tx.ProviderOrderID,
		tx.PlatformFee, tx.ArtistPayout, tx.PayerID, tx.RecipientID, tx.CorrelationMetadata)
	if err := row.Scan(&tx.ID, &tx.Status, &tx.Transferred, &tx.CreatedAt); err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// SetProviderOrderID записывает идентификатор заказа провайдера после открытия.
func (r *PaymentRepository) SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET provider_order_id = $2 WHERE id = $1
	`, id, providerOrderID)
	if err != nil {
		return fmt.Errorf("payment repository: set provider order id %w", err)
	}
	return nil
}

// GetByID возвращает транзакцию по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return common.GetByID[models.PaymentTransaction](ctx, r.db, "payment_transactions", id, ErrTransactionNotFound)
}

// GetByProviderOrderID находит транзакцию по заказу провайдера.
func (r *PaymentRepository) GetByProviderOrderID(ctx context.Context, provider, providerOrderID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.GetContext(ctx, &tx, `
		SELECT * FROM payment_transactions WHERE provider = $1 AND provider_order_id = $2
	`, provider, providerOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("payment repository: get by provider order %w", err)
	}
	return &tx, nil
}

// MarkSucceeded переводит транзакцию pending -> succeeded ровно один раз.
// Вебхук и синхронный capture соревнуются за это обновление; проигравший
// получает ErrAlreadyProcessed и не выполняет каскадных эффектов.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, captureID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = 'succeeded', provider_capture_id = $2, paid_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, captureID)
	if err != nil {
		return fmt.Errorf("payment repository: mark succeeded %w", err)
	}
	return rowsOrAlreadyProcessed(result)
}

// MarkFailed помечает транзакцию неуспешной.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET status = 'failed'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("payment repository: mark failed %w", err)
	}
	return rowsOrAlreadyProcessed(result)
}

// MarkRefunded переводит успешную транзакцию в refunded.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET status = 'refunded'
		WHERE id = $1 AND status = 'succeeded'
	`, id)
	if err != nil {
		return fmt.Errorf("payment repository: mark refunded %w", err)
	}
	return rowsOrAlreadyProcessed(result)
}

// ListByCommission возвращает транзакции комиссии.
func (r *PaymentRepository) ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM payment_transactions WHERE commission_id = $1 ORDER BY created_at DESC
	`, commissionID)
	return txs, err
}

// ListByUser возвращает историю транзакций пользователя (как плательщика или получателя).
func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM payment_transactions
		WHERE payer_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return txs, err
}

// ListSucceededNotTransferred возвращает захваченные, но ещё не выплаченные
// художнику транзакции комиссии. Используется повторновходимым release.
func (r *PaymentRepository) ListSucceededNotTransferred(ctx context.Context, commissionID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM payment_transactions
		WHERE commission_id = $1 AND status = 'succeeded' AND transferred = FALSE
		ORDER BY created_at
	`, commissionID)
	return txs, err
}

// MarkTransferred помечает транзакцию выплаченной ровно один раз.
func (r *PaymentRepository) MarkTransferred(ctx context.Context, id uuid.UUID, transferID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET transferred = TRUE, transfer_id = $2
		WHERE id = $1 AND transferred = FALSE
	`, id, transferID)
	if err != nil {
		return fmt.Errorf("payment repository: mark transferred %w", err)
	}
	return rowsOrAlreadyProcessed(result)
}

func rowsOrAlreadyProcessed(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment repository: rows affected %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

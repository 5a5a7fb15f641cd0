package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/logger"
	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/payment"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
)

// PaymentTransactionRepository описывает хранилище платёжных транзакций.
type PaymentTransactionRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	GetByProviderOrderID(ctx context.Context, provider, providerOrderID string) (*models.PaymentTransaction, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, captureID string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
	ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.PaymentTransaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PaymentTransaction, error)
	ListSucceededNotTransferred(ctx context.Context, commissionID uuid.UUID) ([]models.PaymentTransaction, error)
	MarkTransferred(ctx context.Context, id uuid.UUID, transferID string) error
}

// CommissionRepoForPayments — контракт сверки с хранилищем комиссий.
type CommissionRepoForPayments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	SetPaymentState(ctx context.Context, id uuid.UUID, paymentStatus, escrowStatus string) error
	SetEscrowStatus(ctx context.Context, id uuid.UUID, from, to string) error
	SetCurrentMilestone(ctx context.Context, id uuid.UUID, milestoneID *uuid.UUID) error
	AddTotalPaid(ctx context.Context, id uuid.UUID, amount float64) error
}

// MilestoneRepoForPayments — контракт сверки с хранилищем этапов.
type MilestoneRepoForPayments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	LowestUnpaid(ctx context.Context, commissionID uuid.UUID) (*models.Milestone, error)
	MarkPaid(ctx context.Context, id uuid.UUID, transactionID uuid.UUID) error
	UnlockNext(ctx context.Context, commissionID uuid.UUID) (*models.Milestone, error)
}

// OpenPaymentInput — параметры открытия платежа.
type OpenPaymentInput struct {
	CommissionID uuid.UUID
	PaymentType  string
	Provider     string
	// ExplicitAmount задаёт сумму напрямую; обязателен только для чаевых.
	ExplicitAmount *float64
	MilestoneID    *uuid.UUID
}

// OpenPaymentResult — открытый платёж: локальная транзакция и хэндл провайдера.
type OpenPaymentResult struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	AmountDue       float64   `json:"amount_due"`
	ClientSecret    string    `json:"client_secret,omitempty"`
	ApprovalURL     string    `json:"approval_url,omitempty"`
}

// PaymentService открывает платежи у провайдеров и сводит их события
// (вебхуки и синхронный capture) в единый консистентный леджер.
type PaymentService struct {
	transactions PaymentTransactionRepository
	commissions  CommissionRepoForPayments
	milestones   MilestoneRepoForPayments
	providers    map[string]payment.Provider
	notifier     Notifier
	feeRate      float64
	currency     string
}

// NewPaymentService создаёт платёжный сервис.
func NewPaymentService(
	transactions PaymentTransactionRepository,
	commissions CommissionRepoForPayments,
	milestones MilestoneRepoForPayments,
	providers map[string]payment.Provider,
	notifier Notifier,
	feeRate float64,
	currency string,
) *PaymentService {
	return &PaymentService{
		transactions: transactions,
		commissions:  commissions,
		milestones:   milestones,
		providers:    providers,
		notifier:     notifier,
		feeRate:      feeRate,
		currency:     currency,
	}
}

func (s *PaymentService) provider(name string) (payment.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный платёжный провайдер")
	}
	return p, nil
}

// OpenPayment открывает заказ у провайдера и создаёт локальную транзакцию.
// Строка транзакции пишется в pending до внешнего вызова: деньги не могут
// двигаться без локальной записи. Блокировки строк через внешний вызов
// не удерживаются.
func (s *PaymentService) OpenPayment(ctx context.Context, payerID uuid.UUID, input OpenPaymentInput) (*OpenPaymentResult, error) {
	provider, err := s.provider(input.Provider)
	if err != nil {
		return nil, err
	}

	commission, err := s.commissions.GetByID(ctx, input.CommissionID)
	if err != nil {
		if errors.Is(err, repository.ErrCommissionNotFound) {
			return nil, apperror.ErrCommissionNotFound
		}
		return nil, err
	}
	if commission.ClientID != payerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "платить по комиссии может только клиент")
	}

	amount, milestoneID, err := s.resolveAmount(ctx, commission, input)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма платежа должна быть положительной")
	}

	// Комиссия площадки не берётся с чаевых.
	fee := round2(amount * s.feeRate)
	if input.PaymentType == models.PaymentTypeTip {
		fee = 0
	}

	correlation := payment.Correlation{
		CommissionID: commission.ID,
		PaymentType:  input.PaymentType,
		MilestoneID:  milestoneID,
	}
	token, err := correlation.Encode()
	if err != nil {
		return nil, err
	}
	// Полный контекст корреляции дублируется локально: провайдер может
	// обрезать или потерять свой metadata-канал.
	metadata, err := json.Marshal(correlation)
	if err != nil {
		return nil, fmt.Errorf("payment service: marshal correlation %w", err)
	}

	tx := &models.PaymentTransaction{
		CommissionID:        &commission.ID,
		TransactionType:     input.PaymentType,
		Amount:              amount,
		Provider:            provider.Name(),
		PlatformFee:         fee,
		ArtistPayout:        round2(amount - fee),
		PayerID:             payerID,
		RecipientID:         commission.ArtistID,
		CorrelationMetadata: metadata,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	order, err := provider.CreateOrder(ctx, payment.CreateOrderRequest{
		Amount:      amount,
		Currency:    s.currency,
		Description: fmt.Sprintf("Комиссия %s: %s", commission.ID, input.PaymentType),
		Correlation: token,
	})
	if err != nil {
		if markErr := s.transactions.MarkFailed(ctx, tx.ID); markErr != nil && !errors.Is(markErr, repository.ErrAlreadyProcessed) {
			logger.Log.WithError(markErr).WithField("transaction_id", tx.ID).Error("не удалось пометить транзакцию неуспешной")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalProvider, "провайдер не открыл заказ")
	}

	if err := s.transactions.SetProviderOrderID(ctx, tx.ID, order.ID); err != nil {
		return nil, err
	}

	return &OpenPaymentResult{
		TransactionID:   tx.ID,
		ProviderOrderID: order.ID,
		AmountDue:       amount,
		ClientSecret:    order.ClientSecret,
		ApprovalURL:     order.ApprovalURL,
	}, nil
}

// resolveAmount вычисляет сумму платежа по его типу.
func (s *PaymentService) resolveAmount(ctx context.Context, commission *models.Commission, input OpenPaymentInput) (float64, *uuid.UUID, error) {
	price := commission.Price()

	switch input.PaymentType {
	case models.PaymentTypeDeposit:
		return round2(price * commission.DepositPercentage / 100), nil, nil
	case models.PaymentTypeFull:
		return price, nil, nil
	case models.PaymentTypeFinal:
		return round2(price - commission.TotalPaid), nil, nil
	case models.PaymentTypeTip:
		if input.ExplicitAmount == nil {
			return 0, nil, apperror.New(apperror.ErrCodeValidation, "для чаевых нужна сумма")
		}
		return *input.ExplicitAmount, nil, nil
	case models.PaymentTypeMilestone:
		if input.MilestoneID == nil {
			return 0, nil, apperror.New(apperror.ErrCodeValidation, "не указан этап для оплаты")
		}
		milestone, err := s.milestones.GetByID(ctx, *input.MilestoneID)
		if err != nil {
			if errors.Is(err, repository.ErrMilestoneNotFound) {
				return 0, nil, apperror.ErrMilestoneNotFound
			}
			return 0, nil, err
		}
		if milestone.CommissionID != commission.ID {
			return 0, nil, apperror.New(apperror.ErrCodeValidation, "этап принадлежит другой комиссии")
		}
		if milestone.PaymentStatus == models.MilestonePaid {
			return 0, nil, apperror.New(apperror.ErrCodeInvalidState, "этап уже оплачен")
		}
		if milestone.IsLocked {
			return 0, nil, apperror.New(apperror.ErrCodeInvalidState, "этап ещё заблокирован")
		}
		return milestone.Amount, &milestone.ID, nil
	default:
		return 0, nil, apperror.New(apperror.ErrCodeValidation, "недопустимый тип платежа")
	}
}

// Capture — синхронный канал подтверждения: клиент одобрил платёж в UI
// провайдера и сразу просит захватить средства. Соревнуется с вебхуком
// за одну и ту же транзакцию; проигравший получает no-op.
func (s *PaymentService) Capture(ctx context.Context, userID uuid.UUID, providerName, orderID string) (*models.PaymentTransaction, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	tx, err := s.transactions.GetByProviderOrderID(ctx, provider.Name(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, err
	}
	// Синхронный канал доверяет сессии: захватывать может только плательщик.
	if tx.PayerID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "захватить платёж может только плательщик")
	}

	if tx.Status == models.TransactionStatusSucceeded {
		return tx, nil
	}

	capture, err := provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalProvider, "провайдер не захватил платёж")
	}

	if err := s.applyCapture(ctx, tx, capture.CaptureID, capture.Correlation); err != nil {
		return nil, err
	}
	return s.transactions.GetByID(ctx, tx.ID)
}

// HandleWebhook — асинхронный канал: проверяет подпись и применяет событие.
// Доставка at-least-once, поэтому повторные события завершаются no-op успехом.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, headers map[string]string, body []byte) error {
	provider, err := s.provider(providerName)
	if err != nil {
		return err
	}

	event, err := provider.ParseWebhook(ctx, headers, body)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return apperror.Wrap(err, apperror.ErrCodeBadRequest, "подпись вебхука не прошла проверку")
		}
		return apperror.Wrap(err, apperror.ErrCodeExternalProvider, "не удалось проверить вебхук")
	}

	switch event.Type {
	case payment.EventCaptureCompleted, payment.EventCaptureFailed, payment.EventCaptureRefunded:
	default:
		// Остальные события провайдера нам не интересны.
		return nil
	}

	tx, err := s.transactions.GetByProviderOrderID(ctx, provider.Name(), event.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			// Заказ не наш (или создан другой инсталляцией) — подтверждаем
			// доставку, чтобы провайдер не ретраил бесконечно.
			logger.Log.WithField("order_id", event.OrderID).Warn("вебхук по неизвестному заказу")
			return nil
		}
		return err
	}

	switch event.Type {
	case payment.EventCaptureCompleted:
		return s.applyCapture(ctx, tx, event.CaptureID, event.Correlation)
	case payment.EventCaptureFailed:
		if err := s.transactions.MarkFailed(ctx, tx.ID); err != nil && !errors.Is(err, repository.ErrAlreadyProcessed) {
			return err
		}
		return nil
	case payment.EventCaptureRefunded:
		return s.applyRefund(ctx, tx)
	}
	return nil
}

// applyCapture выполняет последовательность успеха ровно один раз.
// Условное обновление pending -> succeeded решает гонку двух каналов:
// каскадные эффекты выполняет только победитель.
func (s *PaymentService) applyCapture(ctx context.Context, tx *models.PaymentTransaction, captureID, correlation string) error {
	if err := s.transactions.MarkSucceeded(ctx, tx.ID, captureID); err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return nil
		}
		return err
	}

	if tx.CommissionID == nil {
		// Комиссия удалена (decline), транзакция осталась только для аудита.
		return nil
	}
	commissionID := *tx.CommissionID

	paymentStatus := s.paymentStatusAfter(tx)
	if paymentStatus != "" {
		if err := s.commissions.SetPaymentState(ctx, commissionID, paymentStatus, models.EscrowStatusHeld); err != nil {
			return err
		}
	} else if err := s.commissions.SetEscrowStatus(ctx, commissionID, models.EscrowStatusNone, models.EscrowStatusHeld); err != nil {
		if !errors.Is(err, repository.ErrStateConflict) {
			return err
		}
	}

	if tx.TransactionType != models.PaymentTypeTip {
		if err := s.commissions.AddTotalPaid(ctx, commissionID, tx.Amount); err != nil {
			return err
		}
	}

	if tx.TransactionType == models.PaymentTypeMilestone {
		if err := s.creditMilestone(ctx, tx, commissionID, correlation); err != nil {
			return err
		}
	}

	// Уведомления не влияют на корректность платежа.
	s.notifier.NotifyQuiet(ctx, tx.RecipientID, "payment_received", map[string]any{
		"commission_id":  commissionID,
		"transaction_id": tx.ID,
		"amount":         tx.Amount,
	})
	return nil
}

// paymentStatusAfter возвращает новый payment_status комиссии после успеха
// транзакции; пустая строка — статус не меняется (чаевые).
func (s *PaymentService) paymentStatusAfter(tx *models.PaymentTransaction) string {
	switch tx.TransactionType {
	case models.PaymentTypeDeposit, models.PaymentTypeMilestone:
		return models.PaymentStatusDepositPaid
	case models.PaymentTypeFull, models.PaymentTypeFinal:
		return models.PaymentStatusFullyPaid
	default:
		return ""
	}
}

// creditMilestone выбирает этап для зачёта платежа: сперва этап из
// корреляции, при её отсутствии или порче — неоплаченный этап с наименьшим
// номером. Так переживаются гонки и неоднозначность доставки.
func (s *PaymentService) creditMilestone(ctx context.Context, tx *models.PaymentTransaction, commissionID uuid.UUID, rawCorrelation string) error {
	var milestoneID *uuid.UUID

	if correlation, err := payment.DecodeCorrelation(rawCorrelation); err == nil && correlation.MilestoneID != nil {
		milestoneID = correlation.MilestoneID
	} else if len(tx.CorrelationMetadata) > 0 {
		var stored payment.Correlation
		if err := json.Unmarshal(tx.CorrelationMetadata, &stored); err == nil && stored.MilestoneID != nil {
			milestoneID = stored.MilestoneID
		}
	}

	if milestoneID == nil {
		lowest, err := s.milestones.LowestUnpaid(ctx, commissionID)
		if err != nil {
			if errors.Is(err, repository.ErrMilestoneNotFound) {
				logger.Log.WithField("commission_id", commissionID).Warn("платёж за этап без неоплаченных этапов")
				return nil
			}
			return err
		}
		milestoneID = &lowest.ID
	}

	if err := s.milestones.MarkPaid(ctx, *milestoneID, tx.ID); err != nil {
		if !errors.Is(err, repository.ErrMilestoneAlreadyPaid) {
			return err
		}
		// Названный этап успели оплатить параллельно — зачёт уходит
		// следующему неоплаченному.
		lowest, lowestErr := s.milestones.LowestUnpaid(ctx, commissionID)
		if lowestErr != nil {
			if errors.Is(lowestErr, repository.ErrMilestoneNotFound) {
				return nil
			}
			return lowestErr
		}
		if err := s.milestones.MarkPaid(ctx, lowest.ID, tx.ID); err != nil && !errors.Is(err, repository.ErrMilestoneAlreadyPaid) {
			return err
		}
	}

	next, err := s.milestones.UnlockNext(ctx, commissionID)
	if err != nil {
		return err
	}
	if next != nil {
		return s.commissions.SetCurrentMilestone(ctx, commissionID, &next.ID)
	}
	return s.commissions.SetCurrentMilestone(ctx, commissionID, nil)
}

// applyRefund помечает транзакцию возвращённой и переводит escrow в refunded.
func (s *PaymentService) applyRefund(ctx context.Context, tx *models.PaymentTransaction) error {
	if err := s.transactions.MarkRefunded(ctx, tx.ID); err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return nil
		}
		return err
	}
	if tx.CommissionID == nil {
		return nil
	}
	err := s.commissions.SetEscrowStatus(ctx, *tx.CommissionID, models.EscrowStatusHeld, models.EscrowStatusRefunded)
	if err != nil && !errors.Is(err, repository.ErrStateConflict) {
		return err
	}
	return nil
}

// ReleaseEscrow выплачивает художнику все захваченные и ещё не выплаченные
// транзакции комиссии. Операция повторновходима: уже выплаченные транзакции
// помечены transferred и при повторном вызове пропускаются.
func (s *PaymentService) ReleaseEscrow(ctx context.Context, commissionID, userID uuid.UUID) error {
	commission, err := s.commissions.GetByID(ctx, commissionID)
	if err != nil {
		if errors.Is(err, repository.ErrCommissionNotFound) {
			return apperror.ErrCommissionNotFound
		}
		return err
	}
	if commission.ClientID != userID {
		return apperror.New(apperror.ErrCodeForbidden, "освободить escrow может только клиент")
	}
	if commission.Status != models.CommissionStatusCompleted {
		return apperror.New(apperror.ErrCodeInvalidState, "escrow освобождается только после завершения комиссии")
	}
	if commission.EscrowStatus != models.EscrowStatusHeld {
		return apperror.New(apperror.ErrCodeInvalidState, "средства не удерживаются в escrow")
	}

	pending, err := s.transactions.ListSucceededNotTransferred(ctx, commissionID)
	if err != nil {
		return err
	}

	var failed int
	for _, tx := range pending {
		provider, err := s.provider(tx.Provider)
		if err != nil {
			return err
		}

		transfer, err := provider.Transfer(ctx, payment.TransferRequest{
			Amount:      tx.ArtistPayout,
			Currency:    s.currency,
			RecipientID: commission.ArtistID.String(),
			Description: fmt.Sprintf("Выплата по комиссии %s", commissionID),
		})
		if err != nil {
			// Частичный сбой не откатывает уже выплаченное: остаток
			// уйдёт при следующем вызове.
			logger.Log.WithError(err).WithField("transaction_id", tx.ID).Error("выплата не прошла")
			failed++
			continue
		}

		if err := s.transactions.MarkTransferred(ctx, tx.ID, transfer.TransferID); err != nil && !errors.Is(err, repository.ErrAlreadyProcessed) {
			return err
		}
	}

	if failed > 0 {
		return apperror.New(apperror.ErrCodeExternalProvider, "часть выплат не прошла, повторите позже")
	}

	if err := s.commissions.SetEscrowStatus(ctx, commissionID, models.EscrowStatusHeld, models.EscrowStatusReleased); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			// Параллельный release уже закрыл escrow.
			return nil
		}
		return err
	}

	s.notifier.NotifyQuiet(ctx, commission.ArtistID, "escrow_released", map[string]any{"commission_id": commissionID})
	return nil
}

// ListCommissionTransactions возвращает транзакции комиссии участнику сделки.
func (s *PaymentService) ListCommissionTransactions(ctx context.Context, commissionID, userID uuid.UUID) ([]models.PaymentTransaction, error) {
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
	return s.transactions.ListByCommission(ctx, commissionID)
}

// ListUserTransactions возвращает историю транзакций пользователя.
func (s *PaymentService) ListUserTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PaymentTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.transactions.ListByUser(ctx, userID, limit, offset)
}

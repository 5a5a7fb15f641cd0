package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/artcommission-backend/internal/logger"
	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/payment"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

type mockTransactionRepo struct {
	mock.Mock
}

func (m *mockTransactionRepo) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockTransactionRepo) SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	args := m.Called(ctx, id, providerOrderID)
	return args.Error(0)
}

func (m *mockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *mockTransactionRepo) GetByProviderOrderID(ctx context.Context, provider, providerOrderID string) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, provider, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *mockTransactionRepo) MarkSucceeded(ctx context.Context, id uuid.UUID, captureID string) error {
	args := m.Called(ctx, id, captureID)
	return args.Error(0)
}

func (m *mockTransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTransactionRepo) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTransactionRepo) ListByCommission(ctx context.Context, commissionID uuid.UUID) ([]models.PaymentTransaction, error) {
	args := m.Called(ctx, commissionID)
	return args.Get(0).([]models.PaymentTransaction), args.Error(1)
}

func (m *mockTransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PaymentTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.PaymentTransaction), args.Error(1)
}

func (m *mockTransactionRepo) ListSucceededNotTransferred(ctx context.Context, commissionID uuid.UUID) ([]models.PaymentTransaction, error) {
	args := m.Called(ctx, commissionID)
	return args.Get(0).([]models.PaymentTransaction), args.Error(1)
}

func (m *mockTransactionRepo) MarkTransferred(ctx context.Context, id uuid.UUID, transferID string) error {
	args := m.Called(ctx, id, transferID)
	return args.Error(0)
}

type mockCommissionLedger struct {
	mock.Mock
}

func (m *mockCommissionLedger) GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Commission), args.Error(1)
}

func (m *mockCommissionLedger) SetPaymentState(ctx context.Context, id uuid.UUID, paymentStatus, escrowStatus string) error {
	args := m.Called(ctx, id, paymentStatus, escrowStatus)
	return args.Error(0)
}

func (m *mockCommissionLedger) SetEscrowStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *mockCommissionLedger) SetCurrentMilestone(ctx context.Context, id uuid.UUID, milestoneID *uuid.UUID) error {
	args := m.Called(ctx, id, milestoneID)
	return args.Error(0)
}

func (m *mockCommissionLedger) AddTotalPaid(ctx context.Context, id uuid.UUID, amount float64) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

type mockMilestoneLedger struct {
	mock.Mock
}

func (m *mockMilestoneLedger) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneLedger) LowestUnpaid(ctx context.Context, commissionID uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, commissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneLedger) MarkPaid(ctx context.Context, id uuid.UUID, transactionID uuid.UUID) error {
	args := m.Called(ctx, id, transactionID)
	return args.Error(0)
}

func (m *mockMilestoneLedger) UnlockNext(ctx context.Context, commissionID uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, commissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Order), args.Error(1)
}

func (m *mockProvider) CaptureOrder(ctx context.Context, orderID string) (*payment.CaptureResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CaptureResult), args.Error(1)
}

func (m *mockProvider) Transfer(ctx context.Context, req payment.TransferRequest) (*payment.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.TransferResult), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, headers map[string]string, body []byte) (*payment.WebhookEvent, error) {
	args := m.Called(ctx, headers, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookEvent), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyQuiet(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	m.Called(ctx, userID, event, data)
}

type paymentMocks struct {
	transactions *mockTransactionRepo
	commissions  *mockCommissionLedger
	milestones   *mockMilestoneLedger
	provider     *mockProvider
	notifier     *mockNotifier
}

func newTestPaymentService() (*PaymentService, *paymentMocks) {
	m := &paymentMocks{
		transactions: new(mockTransactionRepo),
		commissions:  new(mockCommissionLedger),
		milestones:   new(mockMilestoneLedger),
		provider:     &mockProvider{name: models.ProviderStripe},
		notifier:     new(mockNotifier),
	}
	svc := NewPaymentService(
		m.transactions,
		m.commissions,
		m.milestones,
		map[string]payment.Provider{models.ProviderStripe: m.provider},
		m.notifier,
		0.2,
		"USD",
	)
	return svc, m
}

func testCommission(clientID, artistID uuid.UUID) *models.Commission {
	return &models.Commission{
		ID:            uuid.New(),
		ClientID:      clientID,
		ArtistID:      artistID,
		Budget:        1000,
		Status:        models.CommissionStatusInProgress,
		PaymentType:   models.PaymentTypeFull,
		PaymentStatus: models.PaymentStatusPending,
		EscrowStatus:  models.EscrowStatusNone,
	}
}

func TestPaymentService_OpenPayment_Deposit(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()

	commission := testCommission(clientID, uuid.New())
	commission.DepositPercentage = 30

	var created *models.PaymentTransaction
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)
	m.transactions.On("Create", ctx, mock.AnythingOfType("*models.PaymentTransaction")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*models.PaymentTransaction)
			created.ID = uuid.New()
		}).Return(nil)
	m.provider.On("CreateOrder", ctx, mock.MatchedBy(func(req payment.CreateOrderRequest) bool {
		return req.Amount == 300 && req.Currency == "USD" && req.Correlation != ""
	})).Return(&payment.Order{ID: "pi_123", ClientSecret: "secret_123"}, nil)
	m.transactions.On("SetProviderOrderID", ctx, mock.AnythingOfType("uuid.UUID"), "pi_123").Return(nil)

	result, err := svc.OpenPayment(ctx, clientID, OpenPaymentInput{
		CommissionID: commission.ID,
		PaymentType:  models.PaymentTypeDeposit,
		Provider:     models.ProviderStripe,
	})
	assert.NoError(t, err)
	assert.Equal(t, 300.0, result.AmountDue)
	assert.Equal(t, "pi_123", result.ProviderOrderID)
	assert.Equal(t, "secret_123", result.ClientSecret)

	// Комиссия площадки 20%: 300 -> 60 площадке, 240 художнику.
	assert.Equal(t, 60.0, created.PlatformFee)
	assert.Equal(t, 240.0, created.ArtistPayout)
	assert.Equal(t, models.PaymentTypeDeposit, created.TransactionType)
	m.transactions.AssertExpectations(t)
}

func TestPaymentService_OpenPayment_TipWithoutFee(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()

	commission := testCommission(clientID, uuid.New())
	amount := 150.0

	var created *models.PaymentTransaction
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)
	m.transactions.On("Create", ctx, mock.AnythingOfType("*models.PaymentTransaction")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*models.PaymentTransaction)
			created.ID = uuid.New()
		}).Return(nil)
	m.provider.On("CreateOrder", ctx, mock.Anything).Return(&payment.Order{ID: "pi_tip"}, nil)
	m.transactions.On("SetProviderOrderID", ctx, mock.AnythingOfType("uuid.UUID"), "pi_tip").Return(nil)

	result, err := svc.OpenPayment(ctx, clientID, OpenPaymentInput{
		CommissionID:   commission.ID,
		PaymentType:    models.PaymentTypeTip,
		Provider:       models.ProviderStripe,
		ExplicitAmount: &amount,
	})
	assert.NoError(t, err)
	assert.Equal(t, 150.0, result.AmountDue)

	// Чаевые идут художнику целиком.
	assert.Equal(t, 0.0, created.PlatformFee)
	assert.Equal(t, 150.0, created.ArtistPayout)
}

func TestPaymentService_OpenPayment_TipRequiresAmount(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()

	commission := testCommission(clientID, uuid.New())
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)

	_, err := svc.OpenPayment(ctx, clientID, OpenPaymentInput{
		CommissionID: commission.ID,
		PaymentType:  models.PaymentTypeTip,
		Provider:     models.ProviderStripe,
	})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	m.transactions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPaymentService_OpenPayment_OnlyClientPays(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)

	_, err := svc.OpenPayment(ctx, artistID, OpenPaymentInput{
		CommissionID: commission.ID,
		PaymentType:  models.PaymentTypeFull,
		Provider:     models.ProviderStripe,
	})
	assert.True(t, apperror.IsForbidden(err))
}

func TestPaymentService_OpenPayment_UnknownProvider(t *testing.T) {
	svc, _ := newTestPaymentService()
	ctx := context.Background()

	_, err := svc.OpenPayment(ctx, uuid.New(), OpenPaymentInput{
		CommissionID: uuid.New(),
		PaymentType:  models.PaymentTypeFull,
		Provider:     "sberbank",
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestPaymentService_OpenPayment_LockedMilestone(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()

	commission := testCommission(clientID, uuid.New())
	milestone := &models.Milestone{
		ID:            uuid.New(),
		CommissionID:  commission.ID,
		Amount:        250,
		PaymentStatus: models.MilestoneUnpaid,
		IsLocked:      true,
	}

	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)
	m.milestones.On("GetByID", ctx, milestone.ID).Return(milestone, nil)

	_, err := svc.OpenPayment(ctx, clientID, OpenPaymentInput{
		CommissionID: commission.ID,
		PaymentType:  models.PaymentTypeMilestone,
		Provider:     models.ProviderStripe,
		MilestoneID:  &milestone.ID,
	})
	assert.True(t, apperror.IsInvalidState(err))
}

func TestPaymentService_OpenPayment_ProviderFailure(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()

	commission := testCommission(clientID, uuid.New())
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)
	m.transactions.On("Create", ctx, mock.AnythingOfType("*models.PaymentTransaction")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.PaymentTransaction).ID = uuid.New()
		}).Return(nil)
	m.provider.On("CreateOrder", ctx, mock.Anything).Return(nil, errors.New("stripe: 502"))
	m.transactions.On("MarkFailed", ctx, mock.AnythingOfType("uuid.UUID")).Return(nil)

	_, err := svc.OpenPayment(ctx, clientID, OpenPaymentInput{
		CommissionID: commission.ID,
		PaymentType:  models.PaymentTypeFull,
		Provider:     models.ProviderStripe,
	})
	assert.True(t, apperror.IsExternalProvider(err))
	m.transactions.AssertCalled(t, "MarkFailed", ctx, mock.AnythingOfType("uuid.UUID"))
	m.transactions.AssertNotCalled(t, "SetProviderOrderID", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Capture_Success(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	payerID := uuid.New()
	artistID := uuid.New()
	commissionID := uuid.New()

	tx := &models.PaymentTransaction{
		ID:              uuid.New(),
		CommissionID:    &commissionID,
		TransactionType: models.PaymentTypeFull,
		Amount:          1000,
		Status:          models.TransactionStatusPending,
		Provider:        models.ProviderStripe,
		ProviderOrderID: "pi_777",
		PayerID:         payerID,
		RecipientID:     artistID,
	}
	captured := *tx
	captured.Status = models.TransactionStatusSucceeded

	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_777").Return(tx, nil)
	m.provider.On("CaptureOrder", ctx, "pi_777").Return(&payment.CaptureResult{CaptureID: "ch_1"}, nil)
	m.transactions.On("MarkSucceeded", ctx, tx.ID, "ch_1").Return(nil)
	m.commissions.On("SetPaymentState", ctx, commissionID, models.PaymentStatusFullyPaid, models.EscrowStatusHeld).Return(nil)
	m.commissions.On("AddTotalPaid", ctx, commissionID, 1000.0).Return(nil)
	m.notifier.On("NotifyQuiet", ctx, artistID, "payment_received", mock.Anything).Return()
	m.transactions.On("GetByID", ctx, tx.ID).Return(&captured, nil)

	result, err := svc.Capture(ctx, payerID, models.ProviderStripe, "pi_777")
	assert.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSucceeded, result.Status)
	m.commissions.AssertExpectations(t)
}

func TestPaymentService_Capture_AlreadySucceeded(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	payerID := uuid.New()

	tx := &models.PaymentTransaction{
		ID:      uuid.New(),
		Status:  models.TransactionStatusSucceeded,
		PayerID: payerID,
	}
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_done").Return(tx, nil)

	result, err := svc.Capture(ctx, payerID, models.ProviderStripe, "pi_done")
	assert.NoError(t, err)
	assert.Equal(t, tx, result)
	m.provider.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything)
}

func TestPaymentService_Capture_OnlyPayer(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()

	tx := &models.PaymentTransaction{ID: uuid.New(), PayerID: uuid.New()}
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_x").Return(tx, nil)

	_, err := svc.Capture(ctx, uuid.New(), models.ProviderStripe, "pi_x")
	assert.True(t, apperror.IsForbidden(err))
}

// Второй канал доставки того же успеха обязан завершиться no-op:
// каскад выполняет только победитель условного обновления.
func TestPaymentService_HandleWebhook_DuplicateCompleted(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	commissionID := uuid.New()

	tx := &models.PaymentTransaction{
		ID:              uuid.New(),
		CommissionID:    &commissionID,
		TransactionType: models.PaymentTypeFull,
		Amount:          1000,
		ProviderOrderID: "pi_dup",
	}
	body := []byte(`{}`)

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:      payment.EventCaptureCompleted,
		OrderID:   "pi_dup",
		CaptureID: "ch_9",
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_dup").Return(tx, nil)
	m.transactions.On("MarkSucceeded", ctx, tx.ID, "ch_9").Return(repository.ErrAlreadyProcessed)

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.commissions.AssertNotCalled(t, "SetPaymentState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.commissions.AssertNotCalled(t, "AddTotalPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_HandleWebhook_InvalidSignature(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	body := []byte(`{}`)

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(nil, payment.ErrInvalidSignature)

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.Error(t, err)
	var appErr *apperror.AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.ErrCodeBadRequest, appErr.Code)
}

func TestPaymentService_HandleWebhook_UnknownOrderAcked(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	body := []byte(`{}`)

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:    payment.EventCaptureCompleted,
		OrderID: "pi_foreign",
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_foreign").
		Return(nil, repository.ErrTransactionNotFound)

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
}

func TestPaymentService_HandleWebhook_IrrelevantEvent(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	body := []byte(`{}`)

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:    "customer.updated",
		OrderID: "pi_1",
	}, nil)

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.transactions.AssertNotCalled(t, "GetByProviderOrderID", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_HandleWebhook_Failed(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	body := []byte(`{}`)

	tx := &models.PaymentTransaction{ID: uuid.New(), ProviderOrderID: "pi_bad"}
	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:    payment.EventCaptureFailed,
		OrderID: "pi_bad",
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_bad").Return(tx, nil)
	m.transactions.On("MarkFailed", ctx, tx.ID).Return(nil)

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.transactions.AssertExpectations(t)
}

func TestPaymentService_HandleWebhook_Refunded(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	commissionID := uuid.New()
	body := []byte(`{}`)

	tx := &models.PaymentTransaction{ID: uuid.New(), CommissionID: &commissionID, ProviderOrderID: "pi_ref"}
	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:    payment.EventCaptureRefunded,
		OrderID: "pi_ref",
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_ref").Return(tx, nil)
	m.transactions.On("MarkRefunded", ctx, tx.ID).Return(nil)
	m.commissions.On("SetEscrowStatus", ctx, commissionID, models.EscrowStatusHeld, models.EscrowStatusRefunded).Return(nil)

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.commissions.AssertExpectations(t)
}

func TestPaymentService_MilestoneCredit_ByCorrelation(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	commissionID := uuid.New()
	artistID := uuid.New()
	milestoneID := uuid.New()
	nextID := uuid.New()
	body := []byte(`{}`)

	correlation, err := payment.Correlation{
		CommissionID: commissionID,
		PaymentType:  models.PaymentTypeMilestone,
		MilestoneID:  &milestoneID,
	}.Encode()
	assert.NoError(t, err)

	tx := &models.PaymentTransaction{
		ID:              uuid.New(),
		CommissionID:    &commissionID,
		TransactionType: models.PaymentTypeMilestone,
		Amount:          250,
		ProviderOrderID: "pi_ms",
		RecipientID:     artistID,
	}

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:        payment.EventCaptureCompleted,
		OrderID:     "pi_ms",
		CaptureID:   "ch_ms",
		Correlation: correlation,
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_ms").Return(tx, nil)
	m.transactions.On("MarkSucceeded", ctx, tx.ID, "ch_ms").Return(nil)
	m.commissions.On("SetPaymentState", ctx, commissionID, models.PaymentStatusDepositPaid, models.EscrowStatusHeld).Return(nil)
	m.commissions.On("AddTotalPaid", ctx, commissionID, 250.0).Return(nil)
	m.milestones.On("MarkPaid", ctx, milestoneID, tx.ID).Return(nil)
	m.milestones.On("UnlockNext", ctx, commissionID).Return(&models.Milestone{ID: nextID}, nil)
	m.commissions.On("SetCurrentMilestone", ctx, commissionID, &nextID).Return(nil)
	m.notifier.On("NotifyQuiet", ctx, artistID, "payment_received", mock.Anything).Return()

	err = svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.milestones.AssertExpectations(t)
}

// Корреляция потеряна провайдером и не сохранена локально: зачёт уходит
// неоплаченному этапу с наименьшим номером.
func TestPaymentService_MilestoneCredit_FallbackLowestUnpaid(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	commissionID := uuid.New()
	artistID := uuid.New()
	lowestID := uuid.New()
	body := []byte(`{}`)

	tx := &models.PaymentTransaction{
		ID:              uuid.New(),
		CommissionID:    &commissionID,
		TransactionType: models.PaymentTypeMilestone,
		Amount:          250,
		ProviderOrderID: "pi_nofb",
		RecipientID:     artistID,
	}

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:      payment.EventCaptureCompleted,
		OrderID:   "pi_nofb",
		CaptureID: "ch_nofb",
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_nofb").Return(tx, nil)
	m.transactions.On("MarkSucceeded", ctx, tx.ID, "ch_nofb").Return(nil)
	m.commissions.On("SetPaymentState", ctx, commissionID, models.PaymentStatusDepositPaid, models.EscrowStatusHeld).Return(nil)
	m.commissions.On("AddTotalPaid", ctx, commissionID, 250.0).Return(nil)
	m.milestones.On("LowestUnpaid", ctx, commissionID).Return(&models.Milestone{ID: lowestID}, nil)
	m.milestones.On("MarkPaid", ctx, lowestID, tx.ID).Return(nil)
	m.milestones.On("UnlockNext", ctx, commissionID).Return(nil, nil)
	m.commissions.On("SetCurrentMilestone", ctx, commissionID, (*uuid.UUID)(nil)).Return(nil)
	m.notifier.On("NotifyQuiet", ctx, artistID, "payment_received", mock.Anything).Return()

	err := svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.milestones.AssertExpectations(t)
}

// Названный этап успели оплатить параллельно: зачёт переезжает на следующий
// неоплаченный вместо потери платежа.
func TestPaymentService_MilestoneCredit_NamedAlreadyPaid(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	commissionID := uuid.New()
	artistID := uuid.New()
	paidID := uuid.New()
	fallbackID := uuid.New()
	body := []byte(`{}`)

	correlation, err := payment.Correlation{
		CommissionID: commissionID,
		PaymentType:  models.PaymentTypeMilestone,
		MilestoneID:  &paidID,
	}.Encode()
	assert.NoError(t, err)

	tx := &models.PaymentTransaction{
		ID:              uuid.New(),
		CommissionID:    &commissionID,
		TransactionType: models.PaymentTypeMilestone,
		Amount:          250,
		ProviderOrderID: "pi_race",
		RecipientID:     artistID,
	}

	m.provider.On("ParseWebhook", ctx, mock.Anything, body).Return(&payment.WebhookEvent{
		Type:        payment.EventCaptureCompleted,
		OrderID:     "pi_race",
		CaptureID:   "ch_race",
		Correlation: correlation,
	}, nil)
	m.transactions.On("GetByProviderOrderID", ctx, models.ProviderStripe, "pi_race").Return(tx, nil)
	m.transactions.On("MarkSucceeded", ctx, tx.ID, "ch_race").Return(nil)
	m.commissions.On("SetPaymentState", ctx, commissionID, models.PaymentStatusDepositPaid, models.EscrowStatusHeld).Return(nil)
	m.commissions.On("AddTotalPaid", ctx, commissionID, 250.0).Return(nil)
	m.milestones.On("MarkPaid", ctx, paidID, tx.ID).Return(repository.ErrMilestoneAlreadyPaid)
	m.milestones.On("LowestUnpaid", ctx, commissionID).Return(&models.Milestone{ID: fallbackID}, nil)
	m.milestones.On("MarkPaid", ctx, fallbackID, tx.ID).Return(nil)
	m.milestones.On("UnlockNext", ctx, commissionID).Return(nil, nil)
	m.commissions.On("SetCurrentMilestone", ctx, commissionID, (*uuid.UUID)(nil)).Return(nil)
	m.notifier.On("NotifyQuiet", ctx, artistID, "payment_received", mock.Anything).Return()

	err = svc.HandleWebhook(ctx, models.ProviderStripe, map[string]string{}, body)
	assert.NoError(t, err)
	m.milestones.AssertExpectations(t)
}

func TestPaymentService_ReleaseEscrow_Success(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()
	artistID := uuid.New()

	commission := testCommission(clientID, artistID)
	commission.Status = models.CommissionStatusCompleted
	commission.EscrowStatus = models.EscrowStatusHeld

	tx1 := models.PaymentTransaction{ID: uuid.New(), Provider: models.ProviderStripe, ArtistPayout: 240}
	tx2 := models.PaymentTransaction{ID: uuid.New(), Provider: models.ProviderStripe, ArtistPayout: 560}

	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)
	m.transactions.On("ListSucceededNotTransferred", ctx, commission.ID).
		Return([]models.PaymentTransaction{tx1, tx2}, nil)

	description := fmt.Sprintf("Выплата по комиссии %s", commission.ID)
	m.provider.On("Transfer", ctx, payment.TransferRequest{
		Amount: 240, Currency: "USD", RecipientID: artistID.String(), Description: description,
	}).Return(&payment.TransferResult{TransferID: "tr_1"}, nil)
	m.provider.On("Transfer", ctx, payment.TransferRequest{
		Amount: 560, Currency: "USD", RecipientID: artistID.String(), Description: description,
	}).Return(&payment.TransferResult{TransferID: "tr_2"}, nil)
	m.transactions.On("MarkTransferred", ctx, tx1.ID, "tr_1").Return(nil)
	m.transactions.On("MarkTransferred", ctx, tx2.ID, "tr_2").Return(nil)
	m.commissions.On("SetEscrowStatus", ctx, commission.ID, models.EscrowStatusHeld, models.EscrowStatusReleased).Return(nil)
	m.notifier.On("NotifyQuiet", ctx, artistID, "escrow_released", mock.Anything).Return()

	err := svc.ReleaseEscrow(ctx, commission.ID, clientID)
	assert.NoError(t, err)
	m.transactions.AssertExpectations(t)
	m.commissions.AssertExpectations(t)
}

// Частичный сбой выплат: успешные транзакции помечаются transferred,
// escrow остаётся held, повторный вызов доплатит остаток.
func TestPaymentService_ReleaseEscrow_PartialFailure(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()
	artistID := uuid.New()

	commission := testCommission(clientID, artistID)
	commission.Status = models.CommissionStatusCompleted
	commission.EscrowStatus = models.EscrowStatusHeld

	tx1 := models.PaymentTransaction{ID: uuid.New(), Provider: models.ProviderStripe, ArtistPayout: 240}
	tx2 := models.PaymentTransaction{ID: uuid.New(), Provider: models.ProviderStripe, ArtistPayout: 560}

	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)
	m.transactions.On("ListSucceededNotTransferred", ctx, commission.ID).
		Return([]models.PaymentTransaction{tx1, tx2}, nil)

	description := fmt.Sprintf("Выплата по комиссии %s", commission.ID)
	m.provider.On("Transfer", ctx, payment.TransferRequest{
		Amount: 240, Currency: "USD", RecipientID: artistID.String(), Description: description,
	}).Return(&payment.TransferResult{TransferID: "tr_1"}, nil)
	m.provider.On("Transfer", ctx, payment.TransferRequest{
		Amount: 560, Currency: "USD", RecipientID: artistID.String(), Description: description,
	}).Return(nil, errors.New("stripe: payout failed"))
	m.transactions.On("MarkTransferred", ctx, tx1.ID, "tr_1").Return(nil)

	err := svc.ReleaseEscrow(ctx, commission.ID, clientID)
	assert.True(t, apperror.IsExternalProvider(err))
	m.commissions.AssertNotCalled(t, "SetEscrowStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.transactions.AssertNotCalled(t, "MarkTransferred", ctx, tx2.ID, mock.Anything)
}

func TestPaymentService_ReleaseEscrow_RequiresCompletedAndHeld(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	clientID := uuid.New()

	inProgress := testCommission(clientID, uuid.New())
	inProgress.EscrowStatus = models.EscrowStatusHeld
	m.commissions.On("GetByID", ctx, inProgress.ID).Return(inProgress, nil)

	err := svc.ReleaseEscrow(ctx, inProgress.ID, clientID)
	assert.True(t, apperror.IsInvalidState(err))

	noEscrow := testCommission(clientID, uuid.New())
	noEscrow.Status = models.CommissionStatusCompleted
	m.commissions.On("GetByID", ctx, noEscrow.ID).Return(noEscrow, nil)

	err = svc.ReleaseEscrow(ctx, noEscrow.ID, clientID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestPaymentService_ReleaseEscrow_OnlyClient(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	commission.Status = models.CommissionStatusCompleted
	commission.EscrowStatus = models.EscrowStatusHeld
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)

	err := svc.ReleaseEscrow(ctx, commission.ID, artistID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestPaymentService_ListCommissionTransactions_ParticipantOnly(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()

	commission := testCommission(uuid.New(), uuid.New())
	m.commissions.On("GetByID", ctx, commission.ID).Return(commission, nil)

	_, err := svc.ListCommissionTransactions(ctx, commission.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}

func TestPaymentService_ListUserTransactions_LimitClamp(t *testing.T) {
	svc, m := newTestPaymentService()
	ctx := context.Background()
	userID := uuid.New()

	m.transactions.On("ListByUser", ctx, userID, 20, 0).Return([]models.PaymentTransaction{}, nil)

	_, err := svc.ListUserTransactions(ctx, userID, 0, -5)
	assert.NoError(t, err)
	m.transactions.AssertExpectations(t)
}

package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/pkg/apperror"
	"github.com/ignatzorin/artcommission-backend/internal/repository"
)

type mockCommissionRepo struct {
	mock.Mock
}

func (m *mockCommissionRepo) Create(ctx context.Context, commission *models.Commission) error {
	args := m.Called(ctx, commission)
	return args.Error(0)
}

func (m *mockCommissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Commission), args.Error(1)
}

func (m *mockCommissionRepo) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Commission, error) {
	args := m.Called(ctx, clientID, limit, offset)
	return args.Get(0).([]models.Commission), args.Error(1)
}

func (m *mockCommissionRepo) ListByArtist(ctx context.Context, artistID uuid.UUID, limit, offset int) ([]models.Commission, error) {
	args := m.Called(ctx, artistID, limit, offset)
	return args.Get(0).([]models.Commission), args.Error(1)
}

func (m *mockCommissionRepo) AcceptPending(ctx context.Context, id uuid.UUID, finalPrice *float64) error {
	args := m.Called(ctx, id, finalPrice)
	return args.Error(0)
}

func (m *mockCommissionRepo) CompleteInProgress(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCommissionRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCommissionRepo) DeleteDeclined(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockAdmissionChecker struct {
	mock.Mock
}

func (m *mockAdmissionChecker) CanAdmit(ctx context.Context, artistID uuid.UUID) (*AdmissionDecision, error) {
	args := m.Called(ctx, artistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AdmissionDecision), args.Error(1)
}

type mockReviewCreator struct {
	mock.Mock
}

func (m *mockReviewCreator) CreatePendingPair(ctx context.Context, commissionID, clientID, artistID uuid.UUID) error {
	args := m.Called(ctx, commissionID, clientID, artistID)
	return args.Error(0)
}

func newTestCommissionService() (*CommissionService, *mockCommissionRepo, *mockAdmissionChecker, *mockReviewCreator, *mockNotifier) {
	repo := new(mockCommissionRepo)
	admission := new(mockAdmissionChecker)
	reviews := new(mockReviewCreator)
	notifier := new(mockNotifier)
	return NewCommissionService(repo, admission, reviews, notifier), repo, admission, reviews, notifier
}

func TestCommissionService_CreateCommission_Success(t *testing.T) {
	svc, repo, admission, _, notifier := newTestCommissionService()
	ctx := context.Background()
	clientID := uuid.New()
	artistID := uuid.New()

	admission.On("CanAdmit", ctx, artistID).Return(&AdmissionDecision{Allowed: true}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Commission")).Return(nil)
	notifier.On("NotifyQuiet", ctx, artistID, "commission_requested", mock.Anything).Return()

	commission, err := svc.CreateCommission(ctx, clientID, CreateCommissionInput{
		ArtistID:         artistID,
		Description:      "Портрет персонажа",
		Budget:           500,
		PaymentType:      models.PaymentTypeFull,
		MaxRevisionCount: 3,
	})
	assert.NoError(t, err)
	assert.Equal(t, clientID, commission.ClientID)
	assert.False(t, commission.IsWaitlisted)
	repo.AssertExpectations(t)
}

func TestCommissionService_CreateCommission_Waitlisted(t *testing.T) {
	svc, repo, admission, _, notifier := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	admission.On("CanAdmit", ctx, artistID).Return(&AdmissionDecision{Allowed: true, Waitlisted: true}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*models.Commission")).Return(nil)
	notifier.On("NotifyQuiet", ctx, artistID, "commission_requested", mock.Anything).Return()

	commission, err := svc.CreateCommission(ctx, uuid.New(), CreateCommissionInput{
		ArtistID:    artistID,
		Budget:      500,
		PaymentType: models.PaymentTypeFull,
	})
	assert.NoError(t, err)
	assert.True(t, commission.IsWaitlisted)
}

func TestCommissionService_CreateCommission_AdmissionRejected(t *testing.T) {
	svc, repo, admission, _, _ := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	admission.On("CanAdmit", ctx, artistID).Return(&AdmissionDecision{
		Allowed: false,
		Reason:  "очередь художника заполнена",
	}, nil)

	_, err := svc.CreateCommission(ctx, uuid.New(), CreateCommissionInput{
		ArtistID:    artistID,
		Budget:      500,
		PaymentType: models.PaymentTypeFull,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "очередь художника заполнена")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCommissionService_CreateCommission_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestCommissionService()
	ctx := context.Background()
	clientID := uuid.New()

	// Заказ у самого себя.
	_, err := svc.CreateCommission(ctx, clientID, CreateCommissionInput{
		ArtistID: clientID, Budget: 500, PaymentType: models.PaymentTypeFull,
	})
	assert.True(t, apperror.IsValidation(err))

	// Неположительный бюджет.
	_, err = svc.CreateCommission(ctx, clientID, CreateCommissionInput{
		ArtistID: uuid.New(), Budget: 0, PaymentType: models.PaymentTypeFull,
	})
	assert.True(t, apperror.IsValidation(err))

	// Чаевые не бывают планом оплаты комиссии.
	_, err = svc.CreateCommission(ctx, clientID, CreateCommissionInput{
		ArtistID: uuid.New(), Budget: 500, PaymentType: models.PaymentTypeTip,
	})
	assert.True(t, apperror.IsValidation(err))

	// Депозит с процентом вне (0, 100).
	_, err = svc.CreateCommission(ctx, clientID, CreateCommissionInput{
		ArtistID: uuid.New(), Budget: 500, PaymentType: models.PaymentTypeDeposit, DepositPercentage: 100,
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestCommissionService_GetCommission_ParticipantOnly(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()

	commission := testCommission(uuid.New(), uuid.New())
	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)

	_, err := svc.GetCommission(ctx, commission.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))

	got, err := svc.GetCommission(ctx, commission.ID, commission.ClientID)
	assert.NoError(t, err)
	assert.Equal(t, commission, got)
}

func TestCommissionService_GetCommission_NotFound(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()
	id := uuid.New()

	repo.On("GetByID", ctx, id).Return(nil, repository.ErrCommissionNotFound)

	_, err := svc.GetCommission(ctx, id, uuid.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestCommissionService_Accept_Success(t *testing.T) {
	svc, repo, _, _, notifier := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	commission.Status = models.CommissionStatusPending
	finalPrice := 800.0

	accepted := *commission
	accepted.Status = models.CommissionStatusInProgress
	accepted.FinalPrice = &finalPrice

	repo.On("GetByID", ctx, commission.ID).Return(commission, nil).Once()
	repo.On("AcceptPending", ctx, commission.ID, &finalPrice).Return(nil)
	notifier.On("NotifyQuiet", ctx, commission.ClientID, "commission_accepted", mock.Anything).Return()
	repo.On("GetByID", ctx, commission.ID).Return(&accepted, nil).Once()

	got, err := svc.Accept(ctx, commission.ID, artistID, &finalPrice)
	assert.NoError(t, err)
	assert.Equal(t, models.CommissionStatusInProgress, got.Status)
	repo.AssertExpectations(t)
}

func TestCommissionService_Accept_OnlyArtist(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()

	commission := testCommission(uuid.New(), uuid.New())
	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)

	_, err := svc.Accept(ctx, commission.ID, commission.ClientID, nil)
	assert.True(t, apperror.IsForbidden(err))
}

func TestCommissionService_Accept_StateConflict(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)
	repo.On("AcceptPending", ctx, commission.ID, (*float64)(nil)).Return(repository.ErrStateConflict)

	_, err := svc.Accept(ctx, commission.ID, artistID, nil)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestCommissionService_Decline_Success(t *testing.T) {
	svc, repo, _, _, notifier := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	commission.Status = models.CommissionStatusPending

	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)
	repo.On("DeleteDeclined", ctx, commission.ID).Return(nil)
	notifier.On("NotifyQuiet", ctx, commission.ClientID, "commission_declined", mock.Anything).Return()

	err := svc.Decline(ctx, commission.ID, artistID)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCommissionService_Decline_NotPending(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)
	repo.On("DeleteDeclined", ctx, commission.ID).Return(repository.ErrStateConflict)

	err := svc.Decline(ctx, commission.ID, artistID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestCommissionService_Cancel_OnlyClient(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()

	commission := testCommission(uuid.New(), uuid.New())
	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)

	err := svc.Cancel(ctx, commission.ID, commission.ArtistID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestCommissionService_Complete_CreatesPendingReviews(t *testing.T) {
	svc, repo, _, reviews, notifier := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	completed := *commission
	completed.Status = models.CommissionStatusCompleted

	repo.On("GetByID", ctx, commission.ID).Return(commission, nil).Once()
	repo.On("CompleteInProgress", ctx, commission.ID).Return(nil)
	reviews.On("CreatePendingPair", ctx, commission.ID, commission.ClientID, artistID).Return(nil)
	notifier.On("NotifyQuiet", ctx, commission.ClientID, "commission_completed", mock.Anything).Return()
	repo.On("GetByID", ctx, commission.ID).Return(&completed, nil).Once()

	got, err := svc.Complete(ctx, commission.ID, artistID)
	assert.NoError(t, err)
	assert.Equal(t, models.CommissionStatusCompleted, got.Status)
	reviews.AssertExpectations(t)
}

func TestCommissionService_Complete_StateConflict(t *testing.T) {
	svc, repo, _, reviews, _ := newTestCommissionService()
	ctx := context.Background()
	artistID := uuid.New()

	commission := testCommission(uuid.New(), artistID)
	repo.On("GetByID", ctx, commission.ID).Return(commission, nil)
	repo.On("CompleteInProgress", ctx, commission.ID).Return(repository.ErrStateConflict)

	_, err := svc.Complete(ctx, commission.ID, artistID)
	assert.True(t, apperror.IsInvalidState(err))
	reviews.AssertNotCalled(t, "CreatePendingPair", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommissionService_ListCommissions_RoleRouting(t *testing.T) {
	svc, repo, _, _, _ := newTestCommissionService()
	ctx := context.Background()
	userID := uuid.New()

	repo.On("ListByArtist", ctx, userID, 20, 0).Return([]models.Commission{}, nil)
	repo.On("ListByClient", ctx, userID, 20, 0).Return([]models.Commission{{ID: uuid.New()}}, nil)

	asArtist, err := svc.ListCommissions(ctx, userID, "artist", 0, 0)
	assert.NoError(t, err)
	assert.Empty(t, asArtist)

	asClient, err := svc.ListCommissions(ctx, userID, "client", 0, 0)
	assert.NoError(t, err)
	assert.Len(t, asClient, 1)
}

package http_test

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockAttendanceService
type MockAttendanceService struct {
	mock.Mock
}

func (m *MockAttendanceService) CreateSession(ctx context.Context, actor domain.Actor, in service.CreateSessionInput) (*domain.Session, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}
func (m *MockAttendanceService) SetAttendance(ctx context.Context, actor domain.Actor, sessionID string, attended bool, notes *string) (*domain.Session, error) {
	args := m.Called(ctx, actor, sessionID, attended, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}
func (m *MockAttendanceService) DeleteSession(ctx context.Context, actor domain.Actor, sessionID string) error {
	args := m.Called(ctx, actor, sessionID)
	return args.Error(0)
}
func (m *MockAttendanceService) GetSession(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, actor, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}
func (m *MockAttendanceService) ListSessions(ctx context.Context, actor domain.Actor, filter domain.SessionFilter) ([]domain.Session, error) {
	args := m.Called(ctx, actor, filter)
	return args.Get(0).([]domain.Session), args.Error(1)
}
func (m *MockAttendanceService) GetTodaySessions(ctx context.Context, actor domain.Actor) ([]domain.Session, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Session), args.Error(1)
}
func (m *MockAttendanceService) GetTrainerStats(ctx context.Context, actor domain.Actor) (*domain.TrainerStats, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrainerStats), args.Error(1)
}

// MockPaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) GetTariffs() []domain.TariffPlan {
	args := m.Called()
	return args.Get(0).([]domain.TariffPlan)
}
func (m *MockPaymentService) CreatePayment(ctx context.Context, actor domain.Actor, tariffID, childID string) (*domain.CheckoutResult, error) {
	args := m.Called(ctx, actor, tariffID, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutResult), args.Error(1)
}
func (m *MockPaymentService) ApplyWebhookEvent(ctx context.Context, eventType, externalReference string, rawPayload []byte) (*domain.ReconciliationOutcome, error) {
	args := m.Called(ctx, eventType, externalReference, rawPayload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconciliationOutcome), args.Error(1)
}
func (m *MockPaymentService) GetPayment(ctx context.Context, actor domain.Actor, paymentID string) (*domain.Payment, error) {
	args := m.Called(ctx, actor, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}
func (m *MockPaymentService) ListPayments(ctx context.Context, actor domain.Actor) ([]domain.Payment, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Payment), args.Error(1)
}
func (m *MockPaymentService) ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

// MockLedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetBalance(ctx context.Context, actor domain.Actor, childID string) (int, error) {
	args := m.Called(ctx, actor, childID)
	return args.Int(0), args.Error(1)
}
func (m *MockLedgerService) GetTransactions(ctx context.Context, actor domain.Actor, childID string, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	args := m.Called(ctx, actor, childID, page, pageSize)
	return args.Get(0).([]domain.LedgerTransaction), args.Get(1).(int32), args.Error(2)
}
func (m *MockLedgerService) GetLedgerSummary(ctx context.Context, actor domain.Actor, childID string) (*domain.LedgerSummary, error) {
	args := m.Called(ctx, actor, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerSummary), args.Error(1)
}
func (m *MockLedgerService) AuditBalances(ctx context.Context) ([]domain.BalanceDrift, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.BalanceDrift), args.Error(1)
}

// MockNotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) GetNotifications(ctx context.Context, userID string, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}
func (m *MockNotificationService) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	args := m.Called(ctx, userID, notificationID)
	return args.Error(0)
}
func (m *MockNotificationService) PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockPinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

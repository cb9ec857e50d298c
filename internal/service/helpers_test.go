package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository/memory"
	"clubledger-backend/internal/service"

	"github.com/stretchr/testify/require"
)

type lowBalanceCall struct {
	ChildID string
	Balance int
}

// recordingNotifier captures notices instead of delivering them.
type recordingNotifier struct {
	mu         sync.Mutex
	lowBalance []lowBalanceCall
	confirmed  []string
}

func (n *recordingNotifier) LowBalance(childID string, balance int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowBalance = append(n.lowBalance, lowBalanceCall{ChildID: childID, Balance: balance})
}

func (n *recordingNotifier) PaymentConfirmed(paymentID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, paymentID)
}

func (n *recordingNotifier) LowBalanceCalls() []lowBalanceCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]lowBalanceCall(nil), n.lowBalance...)
}

func (n *recordingNotifier) ConfirmedCalls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.confirmed...)
}

type failingGateway struct {
	err error
}

func (g failingGateway) CreateCheckout(ctx context.Context, p *domain.Payment, description, returnURL string) (*service.Checkout, error) {
	return nil, g.err
}

const (
	trainerProfileID      = "trainer-profile-1"
	otherTrainerProfileID = "trainer-profile-2"
)

type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	attendance service.AttendanceService
	payments   service.PaymentService
	ledger     service.LedgerService

	parent       domain.Actor
	otherParent  domain.Actor
	trainer      domain.Actor
	otherTrainer domain.Actor
	admin        domain.Actor
	child        domain.Child
}

func newFixture(t *testing.T, openingBalance int) *fixture {
	t.Helper()

	store := memory.NewStore()
	notifier := &recordingNotifier{}
	f := &fixture{
		store:        store,
		notifier:     notifier,
		attendance:   service.NewAttendanceService(store, notifier, service.DefaultLowBalanceBand()),
		payments:     service.NewPaymentService(store, service.NewStubCheckoutGateway("http://localhost:3000/checkout"), notifier, "http://localhost:3000/parent/payments"),
		ledger:       service.NewLedgerService(store),
		parent:       domain.Actor{UserID: "parent-1", Role: domain.RoleParent},
		otherParent:  domain.Actor{UserID: "parent-2", Role: domain.RoleParent},
		trainer:      domain.Actor{UserID: "trainer-1", Role: domain.RoleTrainer, TrainerID: trainerProfileID},
		otherTrainer: domain.Actor{UserID: "trainer-2", Role: domain.RoleTrainer, TrainerID: otherTrainerProfileID},
		admin:        domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin},
	}

	store.AddUser(domain.User{ID: f.parent.UserID, Email: "anna@example.com", FirstName: "Anna", LastName: "Petrova", Role: domain.RoleParent})
	store.AddUser(domain.User{ID: f.otherParent.UserID, Email: "oleg@example.com", FirstName: "Oleg", Role: domain.RoleParent})
	store.AddUser(domain.User{ID: f.trainer.UserID, Email: "coach@example.com", FirstName: "Ivan", Role: domain.RoleTrainer})
	store.AddUser(domain.User{ID: f.otherTrainer.UserID, Email: "coach2@example.com", FirstName: "Maria", Role: domain.RoleTrainer})
	store.AddUser(domain.User{ID: f.admin.UserID, Email: "admin@example.com", FirstName: "Admin", Role: domain.RoleAdmin})

	trainerID := trainerProfileID
	f.child = store.AddChild(domain.Child{
		ParentID:  f.parent.UserID,
		TrainerID: &trainerID,
		FirstName: "Misha",
		LastName:  "Petrov",
		Balance:   openingBalance,
	})
	return f
}

func (f *fixture) newSession(t *testing.T) *domain.Session {
	t.Helper()
	s, err := f.attendance.CreateSession(context.Background(), f.trainer, service.CreateSessionInput{
		ChildID:         f.child.ID,
		ScheduledAt:     time.Now().Add(-time.Hour),
		DurationMinutes: domain.DefaultSessionDurationMinutes,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) markAttended(t *testing.T, sessionID string, attended bool) {
	t.Helper()
	_, err := f.attendance.SetAttendance(context.Background(), f.trainer, sessionID, attended, nil)
	require.NoError(t, err)
}

// pendingPayment stores a PENDING payment already carrying the provider's
// external reference, as CreatePayment leaves it.
func (f *fixture) pendingPayment(t *testing.T, ref, childID string, sessions int) *domain.Payment {
	t.Helper()
	p := &domain.Payment{
		UserID:            f.parent.UserID,
		Amount:            sessions * 700,
		SessionsCount:     sessions,
		PaymentMethod:     "checkout",
		ExternalReference: &ref,
		Metadata:          domain.PaymentMetadata{TariffID: "package_8", ChildID: childID},
	}
	require.NoError(t, f.store.Repos().Payments.Create(context.Background(), p))
	return p
}

func (f *fixture) balance(t *testing.T) int {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), f.admin, f.child.ID)
	require.NoError(t, err)
	return b
}

// requireJournalConsistent checks balance = opening + sum of the journal.
func (f *fixture) requireJournalConsistent(t *testing.T) {
	t.Helper()
	drifts, err := f.ledger.AuditBalances(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}

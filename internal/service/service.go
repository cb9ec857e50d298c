package service

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"
)

// CreateSessionInput carries a trainer's new session. TrainerID is honoured
// only for admins; trainers always schedule for themselves.
type CreateSessionInput struct {
	ChildID         string
	TrainerID       string
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           *string
}

type AttendanceService interface {
	CreateSession(ctx context.Context, actor domain.Actor, in CreateSessionInput) (*domain.Session, error)
	// SetAttendance moves the attended flag and the child's balance together.
	// notes replaces the stored notes only when non-nil.
	SetAttendance(ctx context.Context, actor domain.Actor, sessionID string, attended bool, notes *string) (*domain.Session, error)
	DeleteSession(ctx context.Context, actor domain.Actor, sessionID string) error
	GetSession(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, actor domain.Actor, filter domain.SessionFilter) ([]domain.Session, error)
	GetTodaySessions(ctx context.Context, actor domain.Actor) ([]domain.Session, error)
	GetTrainerStats(ctx context.Context, actor domain.Actor) (*domain.TrainerStats, error)
}

type PaymentService interface {
	GetTariffs() []domain.TariffPlan
	CreatePayment(ctx context.Context, actor domain.Actor, tariffID, childID string) (*domain.CheckoutResult, error)
	// ApplyWebhookEvent never returns an error for duplicate or unknown
	// deliveries; those yield a NoOp outcome.
	ApplyWebhookEvent(ctx context.Context, eventType, externalReference string, rawPayload []byte) (*domain.ReconciliationOutcome, error)
	GetPayment(ctx context.Context, actor domain.Actor, paymentID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, actor domain.Actor) ([]domain.Payment, error)
	ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error)
}

type LedgerService interface {
	GetBalance(ctx context.Context, actor domain.Actor, childID string) (int, error)
	GetTransactions(ctx context.Context, actor domain.Actor, childID string, page, pageSize int32) ([]domain.LedgerTransaction, int32, error)
	GetLedgerSummary(ctx context.Context, actor domain.Actor, childID string) (*domain.LedgerSummary, error)
	AuditBalances(ctx context.Context) ([]domain.BalanceDrift, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID string, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Notifier hands notices to a background path. Implementations must not
// block and must not report delivery failures to the caller.
type Notifier interface {
	LowBalance(childID string, balance int)
	PaymentConfirmed(paymentID string)
}

type EmailMessage struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Checkout is what the payment provider returns for a newly created payment.
type Checkout struct {
	ExternalReference string
	ConfirmationURL   string
}

// CheckoutGateway is the payment-provider collaborator.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, p *domain.Payment, description, returnURL string) (*Checkout, error)
}

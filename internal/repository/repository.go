package repository

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// ChildRepository is the ledger store: the balance lives on the child row.
type ChildRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Child, error)
	GetBalance(ctx context.Context, id string) (int, error)
	ListByParent(ctx context.Context, parentID string) ([]domain.Child, error)

	// AdjustBalance applies delta as a relative increment in the store and
	// returns the new balance. It must run inside a transaction together with
	// the record change that caused it.
	AdjustBalance(ctx context.Context, id string, delta int) (int, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Session, error)
	UpdateAttendance(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
	GetTrainerStats(ctx context.Context, trainerID string, now time.Time) (*domain.TrainerStats, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByExternalReference(ctx context.Context, ref string) (*domain.Payment, error)
	SetExternalReference(ctx context.Context, id, ref string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Payment, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Payment, error)

	// TransitionStatus moves the payment from one status to another in a single
	// conditional update. changed is false when the payment was not in from.
	TransitionStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (p *domain.Payment, changed bool, err error)
}

type LedgerRepository interface {
	CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	ListTransactions(ctx context.Context, childID string, page, pageSize int32) ([]domain.LedgerTransaction, int32, error)
	GetSummary(ctx context.Context, childID string) (*domain.LedgerSummary, error)
	ListDrift(ctx context.Context) ([]domain.BalanceDrift, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID string, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	PurgeRead(ctx context.Context, readBefore time.Time) (int64, error)
}

// Repositories is the set of repositories bound to one connection or
// transaction.
type Repositories struct {
	Users         UserRepository
	Children      ChildRepository
	Sessions      SessionRepository
	Payments      PaymentRepository
	Ledger        LedgerRepository
	Notifications NotificationRepository
}

// Transactor runs fn inside one all-or-nothing transaction. The repositories
// handed to fn are bound to that transaction; fn must not use any other.
// A nil return commits, anything else (including a panic or an expired
// deadline) rolls back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is what the services are wired against.
type Store interface {
	Transactor
	Repos() Repositories
	Ping(ctx context.Context) error
}

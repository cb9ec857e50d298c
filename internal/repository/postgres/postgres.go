package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every repository can be
// bound either to the pool or to a running transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db          *sql.DB
	txTimeout   time.Duration
	lockTimeout time.Duration
	repos       repository.Repositories
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB, txTimeout, lockTimeout time.Duration) *Store {
	return &Store{
		db:          db,
		txTimeout:   txTimeout,
		lockTimeout: lockTimeout,
		repos:       newRepositories(db),
	}
}

func newRepositories(db DBTX) repository.Repositories {
	return repository.Repositories{
		Users:         NewUserRepository(db),
		Children:      NewChildRepository(db),
		Sessions:      NewSessionRepository(db),
		Payments:      NewPaymentRepository(db),
		Ledger:        NewLedgerRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// Open connects with the named database/sql driver ("postgres" for lib/pq,
// "pgx" for the pgx stdlib adapter) and verifies the connection.
func Open(ctx context.Context, driver, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Repos returns repositories bound to the connection pool. Use them for
// reads; balance mutations go through WithinTx.
func (s *Store) Repos() repository.Repositories {
	return s.repos
}

// DB exposes the pool for tooling that runs raw SQL, such as fixtures.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn in one transaction bounded by the configured timeout.
// Rollback happens on error, on panic and on an expired deadline.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyTxError(ctx, fmt.Errorf("begin transaction: %w", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("Transaction rollback failed", "error", rbErr)
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classifyTxError(ctx, fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return classifyTxError(ctx, err)
	}

	if err := tx.Commit(); err != nil {
		return classifyTxError(ctx, fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return nil
}

// classifyTxError adds the transient kind when the transaction's own deadline
// expired, whatever error the driver surfaced for it.
func classifyTxError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTransientStore) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: transaction deadline exceeded: %w", domain.ErrTransientStore, err)
	}
	return classifyError(err)
}

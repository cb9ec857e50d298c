package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"
	"clubledger-backend/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return postgres.NewStore(db, 5*time.Second, 2*time.Second), mock
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout = '2000ms'").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("UPDATE children SET balance = balance \\+ \\$1").
			WithArgs(-1, "child-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2))
		mock.ExpectQuery("INSERT INTO ledger_transactions").
			WithArgs("child-1", -1, domain.TransactionTypeAttendanceDebit, 2, sqlmock.AnyArg(), nil, "Session attended").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_on"}).AddRow("tx-1", time.Now()))
		mock.ExpectCommit()

		sessionID := "session-1"
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			balance, err := repos.Children.AdjustBalance(ctx, "child-1", -1)
			if err != nil {
				return err
			}
			return repos.Ledger.CreateTransaction(ctx, &domain.LedgerTransaction{
				ChildID:          "child-1",
				Amount:           -1,
				Type:             domain.TransactionTypeAttendanceDebit,
				BalanceAfter:     balance,
				RelatedSessionID: &sessionID,
				Description:      "Session attended",
			})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnPanic", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
				panic("reconciler bug")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeadlockIsTransient", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("UPDATE children SET balance").
			WithArgs(1, "child-1").
			WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			_, err := repos.Children.AdjustBalance(ctx, "child-1", 1)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrTransientStore)
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginFailureIsTransient", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

		called := false
		err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrTransientStore)
		assert.False(t, called)
	})
}

func TestChildRepository_AdjustBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewChildRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("UPDATE children SET balance = balance \\+ \\$1").
			WithArgs(8, "child-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(10))

		balance, err := repo.AdjustBalance(ctx, "child-1", 8)
		assert.NoError(t, err)
		assert.Equal(t, 10, balance)
	})

	t.Run("MissingChild", func(t *testing.T) {
		mock.ExpectQuery("UPDATE children SET balance").
			WithArgs(-1, "ghost").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		_, err := repo.AdjustBalance(ctx, "ghost", -1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChildRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewChildRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM children WHERE id = \\$1").
		WithArgs("child-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "trainer_id", "first_name", "last_name", "balance", "created_on", "updated_on"}).
			AddRow("child-1", "parent-1", nil, "Misha", "Petrov", 3, now, now))

	c, err := repo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, "parent-1", c.ParentID)
	assert.Nil(t, c.TrainerID)
	assert.Equal(t, 3, c.Balance)
	assert.Equal(t, "Misha Petrov", c.FullName())
}

func TestUserRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewUserRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "created_on"}).
			AddRow("user-1", "anna@example.com", "Anna", "", "PARENT", time.Now()))

	u, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleParent, u.Role)
	assert.Equal(t, "Anna", u.FullName())
}

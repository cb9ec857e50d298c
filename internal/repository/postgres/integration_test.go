//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository/postgres"
	"clubledger-backend/internal/service"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "ledger"
	pgPassword = "ledger"
	pgDatabase = "ledger"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// startPostgres runs a migrated database and returns a store bound to it.
func startPostgres(t *testing.T, driver string) *postgres.Store {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, host, port.Port(), pgDatabase)

	dir, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	m, err := migrate.New("file://"+dir, dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	m.Close()

	db, err := postgres.Open(ctx, driver, dsn, 10, 5)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return postgres.NewStore(db, 5*time.Second, 2*time.Second)
}

type seeded struct {
	parent  domain.Actor
	trainer domain.Actor
	childID string
}

func seed(t *testing.T, store *postgres.Store, balance int) seeded {
	t.Helper()
	ctx := context.Background()
	db := store.DB()

	var parentID, childID string
	trainerID := "8b3e4c6a-0000-4000-8000-000000000001"
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO users (email, first_name, last_name, role) VALUES ($1, 'Anna', 'Petrova', 'PARENT') RETURNING id`,
		fmt.Sprintf("anna+%d@example.com", time.Now().UnixNano())).Scan(&parentID))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO children (parent_id, trainer_id, first_name, last_name, balance, opening_balance)
		 VALUES ($1, $2, 'Misha', 'Petrov', $3, $3) RETURNING id`,
		parentID, trainerID, balance).Scan(&childID))

	return seeded{
		parent:  domain.Actor{UserID: parentID, Role: domain.RoleParent},
		trainer: domain.Actor{UserID: "trainer-user", Role: domain.RoleTrainer, TrainerID: trainerID},
		childID: childID,
	}
}

type nopNotifier struct{}

func (nopNotifier) LowBalance(string, int)   {}
func (nopNotifier) PaymentConfirmed(string) {}

func TestIntegration_AttendanceAndPayments(t *testing.T) {
	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			store := startPostgres(t, driver)
			fx := seed(t, store, 2)
			ctx := context.Background()

			attendance := service.NewAttendanceService(store, nopNotifier{}, service.DefaultLowBalanceBand())
			payments := service.NewPaymentService(store, service.NewStubCheckoutGateway("https://pay.example.com/checkout"), nopNotifier{}, "https://club.example.com/return")
			ledger := service.NewLedgerService(store)

			session, err := attendance.CreateSession(ctx, fx.trainer, service.CreateSessionInput{
				ChildID:         fx.childID,
				ScheduledAt:     time.Now().Add(time.Hour),
				DurationMinutes: 60,
			})
			require.NoError(t, err)

			// Concurrent marks of one session debit once.
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = attendance.SetAttendance(ctx, fx.trainer, session.ID, true, nil)
				}()
			}
			wg.Wait()

			balance, err := ledger.GetBalance(ctx, fx.parent, fx.childID)
			require.NoError(t, err)
			assert.Equal(t, 1, balance)

			checkout, err := payments.CreatePayment(ctx, fx.parent, "package_8", fx.childID)
			require.NoError(t, err)
			p, err := payments.GetPayment(ctx, fx.parent, checkout.PaymentID)
			require.NoError(t, err)
			require.NotNil(t, p.ExternalReference)

			for i := 0; i < 3; i++ {
				_, err := payments.ApplyWebhookEvent(ctx, "payment.succeeded", *p.ExternalReference, []byte(`{}`))
				require.NoError(t, err)
			}

			balance, err = ledger.GetBalance(ctx, fx.parent, fx.childID)
			require.NoError(t, err)
			assert.Equal(t, 9, balance)

			_, err = payments.GetPayment(ctx, fx.parent, "not-a-uuid")
			assert.ErrorIs(t, err, domain.ErrNotFound)

			require.NoError(t, attendance.DeleteSession(ctx, fx.trainer, session.ID))
			summary, err := ledger.GetLedgerSummary(ctx, fx.parent, fx.childID)
			require.NoError(t, err)
			assert.Equal(t, 10, summary.Balance)
			assert.Equal(t, 8, summary.TotalCredited)
			assert.Equal(t, 1, summary.TotalDebited)
			assert.Equal(t, 1, summary.TotalRefunded)

			drifts, err := ledger.AuditBalances(ctx)
			require.NoError(t, err)
			assert.Empty(t, drifts)
		})
	}
}

// retryTransient repeats op while the store reports a retryable failure, as
// a client honouring Retry-After would.
func retryTransient(op func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = op(); err == nil || !domain.IsRetryable(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func TestIntegration_MarksAndCreditsRace(t *testing.T) {
	const (
		marks      = 10
		refs       = 5
		deliveries = 3
	)
	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			store := startPostgres(t, driver)
			fx := seed(t, store, 0)
			ctx := context.Background()

			attendance := service.NewAttendanceService(store, nopNotifier{}, service.DefaultLowBalanceBand())
			payments := service.NewPaymentService(store, service.NewStubCheckoutGateway("https://pay.example.com/checkout"), nopNotifier{}, "https://club.example.com/return")
			ledger := service.NewLedgerService(store)

			sessions := make([]string, marks)
			for i := range sessions {
				s, err := attendance.CreateSession(ctx, fx.trainer, service.CreateSessionInput{
					ChildID:         fx.childID,
					ScheduledAt:     time.Now().Add(time.Duration(i) * time.Hour),
					DurationMinutes: 60,
				})
				require.NoError(t, err)
				sessions[i] = s.ID
			}
			credited := 0
			extRefs := make([]string, refs)
			for i := range extRefs {
				checkout, err := payments.CreatePayment(ctx, fx.parent, "package_8", fx.childID)
				require.NoError(t, err)
				p, err := payments.GetPayment(ctx, fx.parent, checkout.PaymentID)
				require.NoError(t, err)
				require.NotNil(t, p.ExternalReference)
				extRefs[i] = *p.ExternalReference
				credited += p.SessionsCount
			}

			var wg sync.WaitGroup
			errs := make(chan error, marks+refs*deliveries)
			for _, id := range sessions {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					errs <- retryTransient(func() error {
						_, err := attendance.SetAttendance(ctx, fx.trainer, id, true, nil)
						return err
					})
				}(id)
			}
			for _, ref := range extRefs {
				for d := 0; d < deliveries; d++ {
					wg.Add(1)
					go func(ref string) {
						defer wg.Done()
						errs <- retryTransient(func() error {
							_, err := payments.ApplyWebhookEvent(ctx, "payment.succeeded", ref, []byte(`{}`))
							return err
						})
					}(ref)
				}
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			balance, err := ledger.GetBalance(ctx, fx.parent, fx.childID)
			require.NoError(t, err)
			assert.Equal(t, credited-marks, balance)

			drifts, err := ledger.AuditBalances(ctx)
			require.NoError(t, err)
			assert.Empty(t, drifts)
		})
	}
}

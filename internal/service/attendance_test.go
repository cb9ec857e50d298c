package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceService_SetAttendance(t *testing.T) {
	ctx := context.Background()

	t.Run("DebitsOnceWhenMarkedTwice", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)
		f.markAttended(t, s.ID, true)

		assert.Equal(t, 4, f.balance(t))
		txs, total, err := f.ledger.GetTransactions(ctx, f.parent, f.child.ID, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int32(1), total)
		assert.Equal(t, domain.TransactionTypeAttendanceDebit, txs[0].Type)
		assert.Equal(t, -1, txs[0].Amount)
		assert.Equal(t, 4, txs[0].BalanceAfter)
		require.NotNil(t, txs[0].RelatedSessionID)
		assert.Equal(t, s.ID, *txs[0].RelatedSessionID)
	})

	t.Run("ToggleNetsToZero", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)
		f.markAttended(t, s.ID, false)
		f.markAttended(t, s.ID, true)
		f.markAttended(t, s.ID, false)

		assert.Equal(t, 5, f.balance(t))
		_, total, err := f.ledger.GetTransactions(ctx, f.admin, f.child.ID, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int32(4), total)
		f.requireJournalConsistent(t)
	})

	t.Run("UnmarkingUnattendedIsNoOp", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)

		updated, err := f.attendance.SetAttendance(ctx, f.trainer, s.ID, false, nil)
		require.NoError(t, err)
		assert.False(t, updated.Attended)
		assert.NotNil(t, updated.MarkedAt)
		assert.Equal(t, 5, f.balance(t))
	})

	t.Run("NegativeBalanceAllowed", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)

		assert.Equal(t, -1, f.balance(t))
		f.requireJournalConsistent(t)
	})

	t.Run("NotesReplacedOnlyWhenGiven", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)
		note := "worked on backhand"

		updated, err := f.attendance.SetAttendance(ctx, f.trainer, s.ID, true, &note)
		require.NoError(t, err)
		require.NotNil(t, updated.Notes)
		assert.Equal(t, note, *updated.Notes)

		updated, err = f.attendance.SetAttendance(ctx, f.trainer, s.ID, false, nil)
		require.NoError(t, err)
		require.NotNil(t, updated.Notes)
		assert.Equal(t, note, *updated.Notes)
	})

	t.Run("OtherTrainerForbidden", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)

		_, err := f.attendance.SetAttendance(ctx, f.otherTrainer, s.ID, true, nil)
		assert.True(t, errors.Is(err, domain.ErrForbidden))

		_, err = f.attendance.SetAttendance(ctx, f.parent, s.ID, true, nil)
		assert.True(t, errors.Is(err, domain.ErrForbidden))

		assert.Equal(t, 5, f.balance(t))
		got, err := f.attendance.GetSession(ctx, f.admin, s.ID)
		require.NoError(t, err)
		assert.False(t, got.Attended)
		assert.Nil(t, got.MarkedAt)
	})

	t.Run("AdminMayMark", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)

		_, err := f.attendance.SetAttendance(ctx, f.admin, s.ID, true, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, f.balance(t))
	})

	t.Run("UnknownSession", func(t *testing.T) {
		f := newFixture(t, 5)

		_, err := f.attendance.SetAttendance(ctx, f.trainer, "missing", true, nil)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestAttendanceService_LowBalanceNotice(t *testing.T) {
	t.Run("DebitIntoBandNotifies", func(t *testing.T) {
		f := newFixture(t, 4)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)

		assert.Equal(t, []lowBalanceCall{{ChildID: f.child.ID, Balance: 3}}, f.notifier.LowBalanceCalls())
	})

	t.Run("DebitToZeroDoesNotNotify", func(t *testing.T) {
		f := newFixture(t, 1)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)

		assert.Equal(t, 0, f.balance(t))
		assert.Empty(t, f.notifier.LowBalanceCalls())
	})

	t.Run("DebitFromZeroDoesNotNotify", func(t *testing.T) {
		f := newFixture(t, 0)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)

		assert.Empty(t, f.notifier.LowBalanceCalls())
	})

	t.Run("RefundIntoBandDoesNotNotify", func(t *testing.T) {
		f := newFixture(t, 3)
		s := f.newSession(t)
		f.markAttended(t, s.ID, true)
		require.Len(t, f.notifier.LowBalanceCalls(), 1)

		f.markAttended(t, s.ID, false)

		assert.Equal(t, 3, f.balance(t))
		assert.Len(t, f.notifier.LowBalanceCalls(), 1)
	})

	t.Run("DebitAboveBandDoesNotNotify", func(t *testing.T) {
		f := newFixture(t, 10)
		s := f.newSession(t)

		f.markAttended(t, s.ID, true)

		assert.Empty(t, f.notifier.LowBalanceCalls())
	})
}

func TestAttendanceService_ConcurrentMarks(t *testing.T) {
	ctx := context.Background()

	t.Run("DistinctSessionsCommute", func(t *testing.T) {
		f := newFixture(t, 20)
		const n = 12
		ids := make([]string, n)
		for i := range ids {
			ids[i] = f.newSession(t).ID
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.attendance.SetAttendance(ctx, f.trainer, id, true, nil)
				errs <- err
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.Equal(t, 20-n, f.balance(t))
		f.requireJournalConsistent(t)
	})

	t.Run("SameSessionDebitsOnce", func(t *testing.T) {
		f := newFixture(t, 20)
		s := f.newSession(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.attendance.SetAttendance(ctx, f.trainer, s.ID, true, nil)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 19, f.balance(t))
		f.requireJournalConsistent(t)
	})

	t.Run("MarksAndCreditsCommute", func(t *testing.T) {
		f := newFixture(t, 0)
		const (
			marks      = 10
			refs       = 5
			deliveries = 3
			perPayment = 8
		)
		sessions := make([]string, marks)
		for i := range sessions {
			sessions[i] = f.newSession(t).ID
		}
		payments := make([]string, refs)
		for i := range payments {
			payments[i] = fmt.Sprintf("ext_mixed_%d", i)
			f.pendingPayment(t, payments[i], f.child.ID, perPayment)
		}

		var wg sync.WaitGroup
		errs := make(chan error, marks+refs*deliveries)
		for _, id := range sessions {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.attendance.SetAttendance(ctx, f.trainer, id, true, nil)
				errs <- err
			}(id)
		}
		for _, ref := range payments {
			for d := 0; d < deliveries; d++ {
				wg.Add(1)
				go func(ref string) {
					defer wg.Done()
					_, err := f.payments.ApplyWebhookEvent(ctx, "payment.succeeded", ref, []byte(`{}`))
					errs <- err
				}(ref)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.Equal(t, refs*perPayment-marks, f.balance(t))
		assert.Len(t, f.notifier.ConfirmedCalls(), refs)
		f.requireJournalConsistent(t)
	})
}

func TestAttendanceService_DeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("AttendedSessionRefunded", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)
		f.markAttended(t, s.ID, true)

		require.NoError(t, f.attendance.DeleteSession(ctx, f.trainer, s.ID))

		assert.Equal(t, 5, f.balance(t))
		txs, _, err := f.ledger.GetTransactions(ctx, f.admin, f.child.ID, 1, 20)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, domain.TransactionTypeSessionDeleteRefund, txs[0].Type)
		assert.Nil(t, txs[0].RelatedSessionID)
		assert.Contains(t, txs[0].Description, s.ID)

		_, err = f.attendance.GetSession(ctx, f.admin, s.ID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		f.requireJournalConsistent(t)
	})

	t.Run("UnattendedSessionNotRefunded", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)

		require.NoError(t, f.attendance.DeleteSession(ctx, f.trainer, s.ID))

		assert.Equal(t, 5, f.balance(t))
		_, total, err := f.ledger.GetTransactions(ctx, f.admin, f.child.ID, 1, 20)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("OtherTrainerForbidden", func(t *testing.T) {
		f := newFixture(t, 5)
		s := f.newSession(t)
		f.markAttended(t, s.ID, true)

		err := f.attendance.DeleteSession(ctx, f.otherTrainer, s.ID)
		assert.True(t, errors.Is(err, domain.ErrForbidden))
		assert.Equal(t, 4, f.balance(t))
	})

	t.Run("Missing", func(t *testing.T) {
		f := newFixture(t, 5)

		err := f.attendance.DeleteSession(ctx, f.trainer, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestAttendanceService_CreateSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	at := time.Now().Add(time.Hour)

	t.Run("TrainerSchedulesForSelf", func(t *testing.T) {
		s, err := f.attendance.CreateSession(ctx, f.trainer, service.CreateSessionInput{
			ChildID:     f.child.ID,
			TrainerID:   otherTrainerProfileID,
			ScheduledAt: at,
		})
		require.NoError(t, err)
		assert.Equal(t, trainerProfileID, s.TrainerID)
		assert.Equal(t, domain.DefaultSessionDurationMinutes, s.DurationMinutes)
		assert.False(t, s.Attended)
	})

	t.Run("AdminFallsBackToChildTrainer", func(t *testing.T) {
		s, err := f.attendance.CreateSession(ctx, f.admin, service.CreateSessionInput{ChildID: f.child.ID, ScheduledAt: at})
		require.NoError(t, err)
		assert.Equal(t, trainerProfileID, s.TrainerID)
	})

	t.Run("ParentForbidden", func(t *testing.T) {
		_, err := f.attendance.CreateSession(ctx, f.parent, service.CreateSessionInput{ChildID: f.child.ID, ScheduledAt: at})
		assert.True(t, errors.Is(err, domain.ErrForbidden))
	})

	t.Run("ScheduledAtRequired", func(t *testing.T) {
		_, err := f.attendance.CreateSession(ctx, f.trainer, service.CreateSessionInput{ChildID: f.child.ID})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("UnknownChild", func(t *testing.T) {
		_, err := f.attendance.CreateSession(ctx, f.trainer, service.CreateSessionInput{ChildID: "missing", ScheduledAt: at})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestAttendanceService_Visibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	s := f.newSession(t)

	_, err := f.attendance.GetSession(ctx, f.parent, s.ID)
	assert.NoError(t, err)
	_, err = f.attendance.GetSession(ctx, f.otherParent, s.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	_, err = f.attendance.GetSession(ctx, f.otherTrainer, s.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	sessions, err := f.attendance.ListSessions(ctx, f.parent, domain.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	sessions, err = f.attendance.ListSessions(ctx, f.otherParent, domain.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)

	sessions, err = f.attendance.ListSessions(ctx, f.otherTrainer, domain.SessionFilter{TrainerID: trainerProfileID})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestAttendanceService_TrainerViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	now := time.Now()
	noon := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, now.Location())

	for _, at := range []time.Time{noon.Add(2 * time.Hour), noon, noon.AddDate(0, 0, 2), noon.AddDate(0, 0, -3)} {
		_, err := f.attendance.CreateSession(ctx, f.trainer, service.CreateSessionInput{ChildID: f.child.ID, ScheduledAt: at})
		require.NoError(t, err)
	}

	today, err := f.attendance.GetTodaySessions(ctx, f.trainer)
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.True(t, today[0].ScheduledAt.Equal(noon))
	assert.True(t, today[1].ScheduledAt.Equal(noon.Add(2*time.Hour)))

	_, err = f.attendance.GetTodaySessions(ctx, f.parent)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	stats, err := f.attendance.GetTrainerStats(ctx, f.trainer)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalSessions)
	assert.Equal(t, 0, stats.AttendedSessions)
	assert.Equal(t, 1, stats.TotalChildren)
	assert.Equal(t, 2, stats.TodaySessions)

	_, err = f.attendance.GetTrainerStats(ctx, f.admin)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/metrics"
	"clubledger-backend/internal/repository"
)

// LowBalanceBand is the inclusive balance range that triggers a low-balance
// notice after a debit.
type LowBalanceBand struct {
	Min int
	Max int
}

func DefaultLowBalanceBand() LowBalanceBand {
	return LowBalanceBand{Min: 1, Max: 3}
}

func (b LowBalanceBand) Contains(balance int) bool {
	return balance >= b.Min && balance <= b.Max
}

type attendanceService struct {
	store    repository.Store
	notifier Notifier
	band     LowBalanceBand
	now      func() time.Time
}

func NewAttendanceService(store repository.Store, notifier Notifier, band LowBalanceBand) AttendanceService {
	return &attendanceService{store: store, notifier: notifier, band: band, now: time.Now}
}

func (s *attendanceService) CreateSession(ctx context.Context, actor domain.Actor, in CreateSessionInput) (*domain.Session, error) {
	logger.EnterMethod("attendanceService.CreateSession", "actor", actor.UserID, "childID", in.ChildID)

	if in.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", domain.ErrInvalidInput)
	}
	if in.DurationMinutes < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", domain.ErrInvalidInput)
	}

	repos := s.store.Repos()
	child, err := repos.Children.GetByID(ctx, in.ChildID)
	if err != nil {
		logger.ExitMethodWithError("attendanceService.CreateSession", err)
		return nil, err
	}

	var trainerID string
	switch {
	case actor.Role == domain.RoleTrainer && actor.TrainerID != "":
		trainerID = actor.TrainerID
	case actor.IsAdmin():
		trainerID = in.TrainerID
		if trainerID == "" && child.TrainerID != nil {
			trainerID = *child.TrainerID
		}
		if trainerID == "" {
			return nil, fmt.Errorf("%w: trainer is required", domain.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("create session: %w", domain.ErrForbidden)
	}

	session := &domain.Session{
		ChildID:         child.ID,
		TrainerID:       trainerID,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		Notes:           in.Notes,
	}
	if err := repos.Sessions.Create(ctx, session); err != nil {
		logger.ExitMethodWithError("attendanceService.CreateSession", err)
		return nil, err
	}

	logger.ExitMethod("attendanceService.CreateSession", "sessionID", session.ID)
	return session, nil
}

func (s *attendanceService) SetAttendance(ctx context.Context, actor domain.Actor, sessionID string, attended bool, notes *string) (*domain.Session, error) {
	logger.EnterMethod("attendanceService.SetAttendance", "actor", actor.UserID, "sessionID", sessionID, "attended", attended)

	var (
		updated *domain.Session
		delta   int
		balance int
	)
	start := time.Now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		session, err := repos.Sessions.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if !actor.CanManageSession(session.TrainerID) {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
		}

		delta = session.AttendanceDelta(attended)
		markedAt := s.now()
		session.Attended = attended
		session.MarkedAt = &markedAt
		if notes != nil {
			session.Notes = notes
		}
		if err := repos.Sessions.UpdateAttendance(ctx, session); err != nil {
			return err
		}

		if delta != 0 {
			entry := domain.LedgerTransaction{
				ChildID:          session.ChildID,
				Amount:           delta,
				Type:             domain.TransactionTypeAttendanceDebit,
				RelatedSessionID: &session.ID,
				Description:      "Session attended",
			}
			if delta > 0 {
				entry.Type = domain.TransactionTypeAttendanceRefund
				entry.Description = "Attendance mark removed"
			}
			if balance, err = adjustAndJournal(ctx, repos, entry); err != nil {
				return err
			}
		}
		updated = session
		return nil
	})
	metrics.TransactionDuration.WithLabelValues(metrics.KindAttendance).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindAttendance, metrics.ResultError).Inc()
		logger.ExitMethodWithError("attendanceService.SetAttendance", err, "sessionID", sessionID)
		return nil, err
	}

	if delta == 0 {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindAttendance, metrics.ResultNoOp).Inc()
		logger.ExitMethod("attendanceService.SetAttendance", "sessionID", sessionID, "delta", 0)
		return updated, nil
	}

	metrics.ReconciliationsTotal.WithLabelValues(metrics.KindAttendance, metrics.ResultApplied).Inc()
	txType := domain.TransactionTypeAttendanceDebit
	if delta > 0 {
		txType = domain.TransactionTypeAttendanceRefund
	}
	recordAdjustment(metrics.KindAttendance, txType, updated.ChildID, delta, balance, "sessionID", sessionID)

	// Only a debit from a positive balance into the band raises a notice.
	if delta < 0 && balance-delta > 0 && s.band.Contains(balance) {
		s.notifier.LowBalance(updated.ChildID, balance)
	}

	logger.ExitMethod("attendanceService.SetAttendance", "sessionID", sessionID, "delta", delta, "balance", balance)
	return updated, nil
}

// DeleteSession removes a session and, when it had been attended, refunds
// its debit in the same transaction.
func (s *attendanceService) DeleteSession(ctx context.Context, actor domain.Actor, sessionID string) error {
	logger.EnterMethod("attendanceService.DeleteSession", "actor", actor.UserID, "sessionID", sessionID)

	var (
		childID  string
		refunded bool
		balance  int
	)
	start := time.Now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		session, err := repos.Sessions.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if !actor.CanManageSession(session.TrainerID) {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
		}
		childID = session.ChildID

		if session.Attended {
			balance, err = adjustAndJournal(ctx, repos, domain.LedgerTransaction{
				ChildID:          session.ChildID,
				Amount:           1,
				Type:             domain.TransactionTypeSessionDeleteRefund,
				RelatedSessionID: &session.ID,
				Description:      fmt.Sprintf("Attended session %s deleted", session.ID),
			})
			if err != nil {
				return err
			}
			refunded = true
		}
		return repos.Sessions.Delete(ctx, sessionID)
	})
	metrics.TransactionDuration.WithLabelValues(metrics.KindSessionDelete).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindSessionDelete, metrics.ResultError).Inc()
		logger.ExitMethodWithError("attendanceService.DeleteSession", err, "sessionID", sessionID)
		return err
	}

	if refunded {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindSessionDelete, metrics.ResultApplied).Inc()
		recordAdjustment(metrics.KindSessionDelete, domain.TransactionTypeSessionDeleteRefund, childID, 1, balance, "sessionID", sessionID)
	} else {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindSessionDelete, metrics.ResultNoOp).Inc()
	}
	logger.ExitMethod("attendanceService.DeleteSession", "sessionID", sessionID, "refunded", refunded)
	return nil
}

func (s *attendanceService) GetSession(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error) {
	repos := s.store.Repos()
	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case domain.RoleAdmin:
		return session, nil
	case domain.RoleTrainer:
		if actor.TrainerID != "" && actor.TrainerID == session.TrainerID {
			return session, nil
		}
	case domain.RoleParent:
		child, err := repos.Children.GetByID(ctx, session.ChildID)
		if err != nil {
			return nil, err
		}
		if child.ParentID == actor.UserID {
			return session, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
}

// ListSessions narrows filter to what the actor may see: parents their
// children's sessions, trainers their own.
func (s *attendanceService) ListSessions(ctx context.Context, actor domain.Actor, filter domain.SessionFilter) ([]domain.Session, error) {
	switch actor.Role {
	case domain.RoleParent:
		filter.ParentID = actor.UserID
	case domain.RoleTrainer:
		if actor.TrainerID == "" {
			return nil, fmt.Errorf("trainer profile: %w", domain.ErrForbidden)
		}
		filter.TrainerID = actor.TrainerID
	case domain.RoleAdmin:
	default:
		return nil, fmt.Errorf("list sessions: %w", domain.ErrForbidden)
	}
	return s.store.Repos().Sessions.List(ctx, filter)
}

// GetTodaySessions lists the trainer's sessions for the current day, earliest
// first.
func (s *attendanceService) GetTodaySessions(ctx context.Context, actor domain.Actor) ([]domain.Session, error) {
	if actor.Role != domain.RoleTrainer || actor.TrainerID == "" {
		return nil, fmt.Errorf("today's sessions: %w", domain.ErrForbidden)
	}
	now := s.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)

	sessions, err := s.store.Repos().Sessions.List(ctx, domain.SessionFilter{TrainerID: actor.TrainerID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sessions, func(a, b domain.Session) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
	return sessions, nil
}

func (s *attendanceService) GetTrainerStats(ctx context.Context, actor domain.Actor) (*domain.TrainerStats, error) {
	if actor.Role != domain.RoleTrainer || actor.TrainerID == "" {
		return nil, fmt.Errorf("trainer stats: %w", domain.ErrForbidden)
	}
	return s.store.Repos().Sessions.GetTrainerStats(ctx, actor.TrainerID, s.now())
}

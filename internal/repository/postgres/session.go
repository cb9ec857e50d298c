package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"

	"github.com/lib/pq"
)

type sessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) repository.SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `id, child_id, trainer_id, scheduled_at, duration_minutes, attended, marked_at, notes, created_on, updated_on`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	s := &domain.Session{}
	var markedAt sql.NullTime
	var notes sql.NullString
	err := row.Scan(&s.ID, &s.ChildID, &s.TrainerID, &s.ScheduledAt, &s.DurationMinutes, &s.Attended,
		&markedAt, &notes, &s.CreatedOn, &s.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if markedAt.Valid {
		s.MarkedAt = &markedAt.Time
	}
	if notes.Valid {
		s.Notes = &notes.String
	}
	return s, nil
}

func (r *sessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.DurationMinutes <= 0 {
		s.DurationMinutes = domain.DefaultSessionDurationMinutes
	}
	query := `INSERT INTO sessions (child_id, trainer_id, scheduled_at, duration_minutes, attended, notes)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_on, updated_on`
	logger.DatabaseCall("INSERT", "sessions", "childID", s.ChildID, "trainerID", s.TrainerID)

	err := r.db.QueryRowContext(ctx, query, s.ChildID, s.TrainerID, s.ScheduledAt, s.DurationMinutes, s.Attended, s.Notes).
		Scan(&s.ID, &s.CreatedOn, &s.UpdatedOn)
	logger.DatabaseResult("INSERT", 1, err, "sessionID", s.ID)
	return classifyError(err)
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return s, nil
}

// GetByIDForUpdate holds a row lock so concurrent toggles of one session
// serialize and each observes the committed attended flag.
func (r *sessionRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return s, nil
}

func (r *sessionRepository) UpdateAttendance(ctx context.Context, s *domain.Session) error {
	query := `UPDATE sessions SET attended = $2, marked_at = $3, notes = $4, updated_on = NOW()
	          WHERE id = $1 RETURNING updated_on`
	logger.DatabaseCall("UPDATE", "sessions", "sessionID", s.ID, "attended", s.Attended)

	err := r.db.QueryRowContext(ctx, query, s.ID, s.Attended, s.MarkedAt, s.Notes).Scan(&s.UpdatedOn)
	logger.DatabaseResult("UPDATE", 1, err, "sessionID", s.ID)
	if err != nil {
		return notFound(err, "session", s.ID)
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	logger.DatabaseCall("DELETE", "sessions", "sessionID", id)
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err, "sessionID", id)
		return classifyError(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("DELETE", rows, err, "sessionID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *sessionRepository) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.ChildIDs) > 0 {
		conds = append(conds, "child_id = ANY("+arg(pq.Array(filter.ChildIDs))+"::uuid[])")
	}
	if filter.ParentID != "" {
		conds = append(conds, "child_id IN (SELECT id FROM children WHERE parent_id = "+arg(filter.ParentID)+")")
	}
	if filter.TrainerID != "" {
		conds = append(conds, "trainer_id = "+arg(filter.TrainerID))
	}
	if filter.From != nil {
		conds = append(conds, "scheduled_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "scheduled_at <= "+arg(*filter.To))
	}
	if filter.Attended != nil {
		conds = append(conds, "attended = "+arg(*filter.Attended))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, classifyError(rows.Err())
}

// GetTrainerStats counts today's sessions in now's location and treats the
// next seven days as upcoming.
func (r *sessionRepository) GetTrainerStats(ctx context.Context, trainerID string, now time.Time) (*domain.TrainerStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekEnd := now.AddDate(0, 0, 7)

	query := `SELECT COUNT(*),
	                 COUNT(*) FILTER (WHERE attended),
	                 (SELECT COUNT(*) FROM children WHERE trainer_id = $1),
	                 COUNT(*) FILTER (WHERE scheduled_at >= $2 AND scheduled_at < $3),
	                 COUNT(*) FILTER (WHERE scheduled_at >= $4 AND scheduled_at <= $5)
	          FROM sessions WHERE trainer_id = $1`
	stats := &domain.TrainerStats{}
	err := r.db.QueryRowContext(ctx, query, trainerID, dayStart, dayEnd, now, weekEnd).
		Scan(&stats.TotalSessions, &stats.AttendedSessions, &stats.TotalChildren, &stats.TodaySessions, &stats.UpcomingSessions)
	if err != nil {
		return nil, classifyError(err)
	}
	return stats, nil
}

package domain

import "time"

const DefaultSessionDurationMinutes = 60

type Session struct {
	ID              string     `json:"id"`
	ChildID         string     `json:"child_id"`
	TrainerID       string     `json:"trainer_id"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Attended        bool       `json:"attended"`
	MarkedAt        *time.Time `json:"marked_at,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedOn       time.Time  `json:"created_on"`
	UpdatedOn       time.Time  `json:"updated_on"`
}

// AttendanceDelta is the balance change caused by moving a session from its
// current attended flag to requested: -1 consumes a session, +1 refunds one.
func (s *Session) AttendanceDelta(requested bool) int {
	switch {
	case requested && !s.Attended:
		return -1
	case !requested && s.Attended:
		return 1
	default:
		return 0
	}
}

// SessionFilter bounds are inclusive.
type SessionFilter struct {
	ChildIDs  []string
	ParentID  string
	TrainerID string
	From      *time.Time
	To        *time.Time
	Attended  *bool
}

type TrainerStats struct {
	TotalSessions    int `json:"total_sessions"`
	AttendedSessions int `json:"attended_sessions"`
	TotalChildren    int `json:"total_children"`
	TodaySessions    int `json:"today_sessions"`
	UpcomingSessions int `json:"upcoming_sessions"`
}

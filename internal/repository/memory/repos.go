package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"clubledger-backend/internal/domain"

	"github.com/google/uuid"
)

type userRepository struct{ v *view }

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.read(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return notFound("user", id)
		}
		out = &u
		return nil
	})
	return out, err
}

type childRepository struct{ v *view }

func (r *childRepository) GetByID(ctx context.Context, id string) (*domain.Child, error) {
	var out *domain.Child
	err := r.v.read(ctx, func(st *state) error {
		c, ok := st.children[id]
		if !ok {
			return notFound("child", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *childRepository) GetBalance(ctx context.Context, id string) (int, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return c.Balance, nil
}

func (r *childRepository) ListByParent(ctx context.Context, parentID string) ([]domain.Child, error) {
	var out []domain.Child
	err := r.v.read(ctx, func(st *state) error {
		for _, c := range st.children {
			if c.ParentID == parentID {
				out = append(out, c)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Child) int {
		if n := strings.Compare(a.FirstName, b.FirstName); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, err
}

func (r *childRepository) AdjustBalance(ctx context.Context, id string, delta int) (int, error) {
	var balance int
	err := r.v.write(ctx, func(st *state) error {
		c, ok := st.children[id]
		if !ok {
			return notFound("child", id)
		}
		c.Balance += delta
		c.UpdatedOn = r.v.now()
		st.children[id] = c
		balance = c.Balance
		return nil
	})
	return balance, err
}

type sessionRepository struct{ v *view }

func (r *sessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.children[s.ChildID]; !ok {
			return notFound("child", s.ChildID)
		}
		if s.DurationMinutes <= 0 {
			s.DurationMinutes = domain.DefaultSessionDurationMinutes
		}
		now := r.v.now()
		s.ID = uuid.NewString()
		s.CreatedOn = now
		s.UpdatedOn = now
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var out *domain.Session
	err := r.v.read(ctx, func(st *state) error {
		s, ok := st.sessions[id]
		if !ok {
			return notFound("session", id)
		}
		out = &s
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no extra locking: transactions already hold the
// whole store.
func (r *sessionRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Session, error) {
	return r.GetByID(ctx, id)
}

func (r *sessionRepository) UpdateAttendance(ctx context.Context, s *domain.Session) error {
	return r.v.write(ctx, func(st *state) error {
		cur, ok := st.sessions[s.ID]
		if !ok {
			return notFound("session", s.ID)
		}
		cur.Attended = s.Attended
		cur.MarkedAt = s.MarkedAt
		cur.Notes = s.Notes
		cur.UpdatedOn = r.v.now()
		st.sessions[s.ID] = cur
		s.UpdatedOn = cur.UpdatedOn
		return nil
	})
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.sessions[id]; !ok {
			return notFound("session", id)
		}
		delete(st.sessions, id)
		// journal rows keep their history but lose the reference
		for i := range st.ledger {
			if ref := st.ledger[i].RelatedSessionID; ref != nil && *ref == id {
				st.ledger[i].RelatedSessionID = nil
			}
		}
		return nil
	})
}

func (r *sessionRepository) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	var out []domain.Session
	err := r.v.read(ctx, func(st *state) error {
		for _, s := range st.sessions {
			if len(filter.ChildIDs) > 0 && !slices.Contains(filter.ChildIDs, s.ChildID) {
				continue
			}
			if filter.ParentID != "" && st.children[s.ChildID].ParentID != filter.ParentID {
				continue
			}
			if filter.TrainerID != "" && s.TrainerID != filter.TrainerID {
				continue
			}
			if filter.From != nil && s.ScheduledAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && s.ScheduledAt.After(*filter.To) {
				continue
			}
			if filter.Attended != nil && s.Attended != *filter.Attended {
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Session) int {
		if n := b.ScheduledAt.Compare(a.ScheduledAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, err
}

func (r *sessionRepository) GetTrainerStats(ctx context.Context, trainerID string, now time.Time) (*domain.TrainerStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekEnd := now.AddDate(0, 0, 7)
	stats := &domain.TrainerStats{}
	err := r.v.read(ctx, func(st *state) error {
		for _, c := range st.children {
			if c.TrainerID != nil && *c.TrainerID == trainerID {
				stats.TotalChildren++
			}
		}
		for _, s := range st.sessions {
			if s.TrainerID != trainerID {
				continue
			}
			stats.TotalSessions++
			if s.Attended {
				stats.AttendedSessions++
			}
			if !s.ScheduledAt.Before(dayStart) && s.ScheduledAt.Before(dayEnd) {
				stats.TodaySessions++
			}
			if !s.ScheduledAt.Before(now) && !s.ScheduledAt.After(weekEnd) {
				stats.UpcomingSessions++
			}
		}
		return nil
	})
	return stats, err
}

type paymentRepository struct{ v *view }

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	return r.v.write(ctx, func(st *state) error {
		if p.ExternalReference != nil {
			if _, found := findByRef(st, *p.ExternalReference); found {
				return fmt.Errorf("%w: duplicate external reference %s", domain.ErrInvalidInput, *p.ExternalReference)
			}
		}
		if p.Currency == "" {
			p.Currency = domain.DefaultCurrency
		}
		if p.Status == "" {
			p.Status = domain.PaymentStatusPending
		}
		now := r.v.now()
		p.ID = uuid.NewString()
		p.CreatedOn = now
		p.UpdatedOn = now
		st.payments[p.ID] = *p
		return nil
	})
}

func findByRef(st *state, ref string) (domain.Payment, bool) {
	for _, p := range st.payments {
		if p.ExternalReference != nil && *p.ExternalReference == ref {
			return p, true
		}
	}
	return domain.Payment{}, false
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.v.read(ctx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return notFound("payment", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *paymentRepository) GetByExternalReference(ctx context.Context, ref string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.v.read(ctx, func(st *state) error {
		p, ok := findByRef(st, ref)
		if !ok {
			return notFound("payment with external reference", ref)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *paymentRepository) SetExternalReference(ctx context.Context, id, ref string) error {
	return r.v.write(ctx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return notFound("payment", id)
		}
		if other, found := findByRef(st, ref); found && other.ID != id {
			return fmt.Errorf("%w: duplicate external reference %s", domain.ErrInvalidInput, ref)
		}
		p.ExternalReference = &ref
		p.UpdatedOn = r.v.now()
		st.payments[id] = p
		return nil
	})
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	return r.list(ctx, func(p domain.Payment) bool { return p.UserID == userID })
}

func (r *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Payment, error) {
	return r.list(ctx, func(p domain.Payment) bool {
		return p.Status == domain.PaymentStatusPending && p.CreatedOn.Before(createdBefore)
	})
}

func (r *paymentRepository) list(ctx context.Context, keep func(domain.Payment) bool) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.v.read(ctx, func(st *state) error {
		for _, p := range st.payments {
			if keep(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Payment) int {
		if n := b.CreatedOn.Compare(a.CreatedOn); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, err
}

func (r *paymentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (*domain.Payment, bool, error) {
	var out *domain.Payment
	err := r.v.write(ctx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok || p.Status != from {
			return nil
		}
		p.Status = to
		p.UpdatedOn = r.v.now()
		st.payments[id] = p
		out = &p
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

type ledgerRepository struct{ v *view }

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.children[tx.ChildID]; !ok {
			return notFound("child", tx.ChildID)
		}
		tx.ID = uuid.NewString()
		tx.CreatedOn = r.v.now()
		st.ledger = append(st.ledger, *tx)
		return nil
	})
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, childID string, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var all []domain.LedgerTransaction
	err := r.v.read(ctx, func(st *state) error {
		// newest first
		for i := len(st.ledger) - 1; i >= 0; i-- {
			if st.ledger[i].ChildID == childID {
				all = append(all, st.ledger[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := int32(len(all))
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := min(start+pageSize, total)
	return all[start:end], total, nil
}

func (r *ledgerRepository) GetSummary(ctx context.Context, childID string) (*domain.LedgerSummary, error) {
	summary := &domain.LedgerSummary{ChildID: childID}
	err := r.v.read(ctx, func(st *state) error {
		c, ok := st.children[childID]
		if !ok {
			return notFound("child", childID)
		}
		summary.Balance = c.Balance
		for _, tx := range st.ledger {
			if tx.ChildID != childID {
				continue
			}
			switch tx.Type {
			case domain.TransactionTypePaymentCredit:
				summary.TotalCredited += tx.Amount
			case domain.TransactionTypeAttendanceDebit:
				summary.TotalDebited -= tx.Amount
			case domain.TransactionTypeAttendanceRefund, domain.TransactionTypeSessionDeleteRefund:
				summary.TotalRefunded += tx.Amount
			}
		}
		for _, s := range st.sessions {
			if s.ChildID == childID && s.Attended {
				summary.AttendedSessions++
			}
		}
		for _, p := range st.payments {
			if p.Status == domain.PaymentStatusCompleted && p.Metadata.ChildID == childID {
				summary.CompletedPayments++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *ledgerRepository) ListDrift(ctx context.Context) ([]domain.BalanceDrift, error) {
	var out []domain.BalanceDrift
	err := r.v.read(ctx, func(st *state) error {
		sums := map[string]int{}
		for _, tx := range st.ledger {
			sums[tx.ChildID] += tx.Amount
		}
		for _, id := range slices.Sorted(maps.Keys(st.children)) {
			d := domain.BalanceDrift{
				ChildID:        id,
				Balance:        st.children[id].Balance,
				OpeningBalance: st.opening[id],
				JournalSum:     sums[id],
			}
			if d.Balance != d.Expected() {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

type notificationRepository struct{ v *view }

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.v.write(ctx, func(st *state) error {
		n.ID = uuid.NewString()
		n.CreatedOn = r.v.now()
		stored := *n
		stored.Attributes = maps.Clone(n.Attributes)
		st.notifications[n.ID] = stored
		return nil
	})
}

func (r *notificationRepository) List(ctx context.Context, userID string, limit, offset int32) ([]domain.Notification, int32, error) {
	var all []domain.Notification
	err := r.v.read(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID {
				all = append(all, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	slices.SortFunc(all, func(a, b domain.Notification) int {
		if c := b.CreatedOn.Compare(a.CreatedOn); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := int32(len(all))
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 {
		end = min(offset+limit, total)
	}
	return all[offset:end], total, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID string) error {
	return r.v.write(ctx, func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return notFound("notification", id)
		}
		if !n.IsRead {
			n.IsRead = true
			st.notifications[id] = n
			st.readOn[id] = r.v.now()
		}
		return nil
	})
}

func (r *notificationRepository) PurgeRead(ctx context.Context, readBefore time.Time) (int64, error) {
	var purged int64
	err := r.v.write(ctx, func(st *state) error {
		for id, readAt := range st.readOn {
			if readAt.Before(readBefore) {
				delete(st.notifications, id)
				delete(st.readOn, id)
				purged++
			}
		}
		return nil
	})
	return purged, err
}

// Package memory is an in-process implementation of the repositories. A
// transaction works on a private copy of the state and swaps it in on commit,
// so a failed or abandoned transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"maps"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	users         map[string]domain.User
	children      map[string]domain.Child
	opening       map[string]int
	sessions      map[string]domain.Session
	payments      map[string]domain.Payment
	ledger        []domain.LedgerTransaction
	notifications map[string]domain.Notification
	readOn        map[string]time.Time
}

func newState() *state {
	return &state{
		users:         map[string]domain.User{},
		children:      map[string]domain.Child{},
		opening:       map[string]int{},
		sessions:      map[string]domain.Session{},
		payments:      map[string]domain.Payment{},
		notifications: map[string]domain.Notification{},
		readOn:        map[string]time.Time{},
	}
}

// clone copies every table. Entity values are replaced wholesale on write,
// never mutated in place, so a shallow copy per map is enough.
func (s *state) clone() *state {
	return &state{
		users:         maps.Clone(s.users),
		children:      maps.Clone(s.children),
		opening:       maps.Clone(s.opening),
		sessions:      maps.Clone(s.sessions),
		payments:      maps.Clone(s.payments),
		ledger:        append([]domain.LedgerTransaction(nil), s.ledger...),
		notifications: maps.Clone(s.notifications),
		readOn:        maps.Clone(s.readOn),
	}
}

type Store struct {
	sem       chan struct{}
	state     *state
	txTimeout time.Duration
	now       func() time.Time
}

var _ repository.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTxTimeout bounds how long a transaction may wait for and hold the store.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) { s.txTimeout = d }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sem:   make(chan struct{}, 1),
		state: newState(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for store: %w", domain.ErrTransientStore, ctx.Err())
	}
}

func (s *Store) release() {
	<-s.sem
}

// Repos returns repositories that each take the store for one call.
func (s *Store) Repos() repository.Repositories {
	return bind(&view{store: s})
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithinTx serializes transactions. fn sees a private copy of the state that
// becomes visible only if fn returns nil before the deadline.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	work := s.state.clone()
	if err := fn(ctx, bind(&view{store: s, tx: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: transaction deadline exceeded: %w", domain.ErrTransientStore, err)
	}
	s.state = work
	return nil
}

// AddUser and AddChild seed collaborator data that this service only reads.
// The child's balance at insertion becomes its opening balance.
func (s *Store) AddUser(u domain.User) {
	s.sem <- struct{}{}
	defer s.release()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedOn.IsZero() {
		u.CreatedOn = s.now()
	}
	s.state.users[u.ID] = u
}

func (s *Store) AddChild(c domain.Child) domain.Child {
	s.sem <- struct{}{}
	defer s.release()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	if c.CreatedOn.IsZero() {
		c.CreatedOn = now
	}
	c.UpdatedOn = now
	s.state.children[c.ID] = c
	s.state.opening[c.ID] = c.Balance
	return c
}

// view routes each repository call either to a transaction's working copy or,
// outside a transaction, to the live state under the store's lock.
type view struct {
	store *Store
	tx    *state
}

func (v *view) read(ctx context.Context, fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	if err := v.store.acquire(ctx); err != nil {
		return err
	}
	defer v.store.release()
	return fn(v.store.state)
}

// write is read plus an all-or-nothing guarantee outside a transaction.
func (v *view) write(ctx context.Context, fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	if err := v.store.acquire(ctx); err != nil {
		return err
	}
	defer v.store.release()
	work := v.store.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	v.store.state = work
	return nil
}

func (v *view) now() time.Time {
	return v.store.now()
}

func bind(v *view) repository.Repositories {
	return repository.Repositories{
		Users:         &userRepository{v},
		Children:      &childRepository{v},
		Sessions:      &sessionRepository{v},
		Payments:      &paymentRepository{v},
		Ledger:        &ledgerRepository{v},
		Notifications: &notificationRepository{v},
	}
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
}

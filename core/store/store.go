// Package store is the application state store of the dashboard: the session, the classes,
// students and updates mirrored from the backend, the selected class and the student cursor.
//
// Every operation checks its preconditions, calls the backend, then dispatches actions that
// Reduce applies atomically. Results of requests started before a logout or a login are dropped.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/user"
)

type Store struct {
	backend    backend.Backend
	logger     core.Logger
	notifier   Notifier
	validate   *validator.Validate
	translator ut.Translator
	now        func() time.Time
	pageSize   int

	mu         sync.RWMutex
	state      State
	generation uint64 // bumped by Reset and SetSession
	epoch      uint64 // bumped by Reset
	subs       map[int]func(State)
	nextSub    int

	inflight singleflight.Group
}

type Option func(*Store)

func WithLogger(logger core.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Store) { s.notifier = notifier }
}

// WithValidator shares an application validator; it must have the core validators registered.
func WithValidator(validate *validator.Validate, translator ut.Translator) Option {
	return func(s *Store) { s.validate, s.translator = validate, translator }
}

func WithPageSize(size int) Option {
	return func(s *Store) { s.pageSize = size }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(b backend.Backend, opts ...Option) *Store {
	s := &Store{
		backend:  b,
		logger:   core.NopLogger,
		notifier: nopNotifier{},
		now:      time.Now,
		pageSize: DefaultPageSize,
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validate == nil {
		s.validate, s.translator = core.NewValidator()
	}
	if s.pageSize < 1 {
		s.pageSize = DefaultPageSize
	}
	s.state = initialState(s.pageSize)
	return s
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to receive every new snapshot. fn runs outside the store lock;
// snapshots of concurrent dispatches may arrive out of order.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Dispatch applies actions atomically.
func (s *Store) Dispatch(actions ...Action) {
	s.apply(nil, static(actions))
}

func static(actions []Action) func(State) []Action {
	return func(State) []Action { return actions }
}

// apply runs the actions built from the current state as one transition, if cond holds.
// cond and build run under the lock.
func (s *Store) apply(cond func() bool, build func(State) []Action) bool {
	s.mu.Lock()
	if cond != nil && !cond() {
		s.mu.Unlock()
		return false
	}

	st := s.state
	for _, a := range build(st) {
		st = Reduce(st, a)
		switch a.(type) {
		case Reset:
			s.generation++
			s.epoch++
		case SetSession:
			s.generation++
		}
	}
	s.state = st

	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return true
}

// begin marks a request as pending. done must be called once the request settles.
func (s *Store) begin() (gen uint64, done func()) {
	var epoch uint64
	s.apply(func() bool {
		gen, epoch = s.generation, s.epoch
		return true
	}, static([]Action{RequestStarted{}}))

	return gen, func() {
		// a Reset already zeroed the counter
		s.apply(func() bool { return s.epoch == epoch }, static([]Action{RequestFinished{}}))
	}
}

func (s *Store) current(gen uint64) func() bool {
	return func() bool { return s.generation == gen }
}

// dispatchFrom applies actions unless the session changed since gen.
func (s *Store) dispatchFrom(gen uint64, actions ...Action) bool {
	return s.apply(s.current(gen), static(actions))
}

// dispatchFunc is dispatchFrom with actions depending on the state they apply to.
func (s *Store) dispatchFunc(gen uint64, build func(State) []Action) bool {
	return s.apply(s.current(gen), build)
}

func (s *Store) snapshot() (gen uint64, st State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, s.state
}

// share runs fn once for concurrent callers of the same operation with the same payload in
// the session generation gen. fn gets a context that ignores the cancellation of ctx: a caller
// giving up gets ctx.Err() while the others keep waiting for the result.
func share[T any](ctx context.Context, s *Store, gen uint64, op string, payload interface{}, fn func(context.Context) (T, error)) (T, error) {
	key := fmt.Sprintf("%s@%d", op, gen)
	if payload != nil {
		data, _ := json.Marshal(payload)
		key += ":" + string(data)
	}
	detached := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(T)
		return res, r.Err
	case <-ctx.Done():
		var zero T
		return zero, errors.WithStack(ctx.Err())
	}
}

// fail logs, records and notifies a failure, then returns it as an *Error.
func (s *Store) fail(gen uint64, kind Kind, entity string, err error) error {
	sErr := newError(kind, entity, err)
	if kind == KindNotFound || err == ErrUnauthenticated || err == ErrNoClassSelected {
		s.logger.Warn(sErr.Error())
	} else {
		s.logger.Error(sErr.Error(), err)
	}
	s.dispatchFrom(gen, SetError{Err: sErr})
	s.notifier.Error(sErr)
	return sErr
}

// principal returns the signed in user.
func (s *Store) principal() (user.User, bool) {
	_, st := s.snapshot()
	if st.CurrentUser == nil {
		return user.User{}, false
	}
	return *st.CurrentUser, true
}

// check validates v, reporting field errors as a *core.ValidationError.
func (s *Store) check(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return core.TranslateErrors(err, s.translator)
	}
	return nil
}

func (s *Store) nowUTC() time.Time { return s.now().UTC() }

// getByID looks id up in the local listing first, then fetches it from table.
func getByID[T any](ctx context.Context, s *Store, entity, id string, local func(State) []T, idOf func(T) string, table backend.Table[T]) (T, error) {
	var zero T
	gen, st := s.snapshot()
	for _, it := range local(st) {
		if idOf(it) == id {
			return it, nil
		}
	}
	if st.CurrentUser == nil {
		return zero, s.fail(gen, KindAuth, entity, ErrUnauthenticated)
	}

	gen, done := s.begin()
	defer done()

	return share(ctx, s, gen, entity+".get", id, func(ctx context.Context) (T, error) {
		it, err := table.Get(ctx, id)
		if errors.Is(err, backend.ErrNotFound) {
			return zero, s.fail(gen, KindNotFound, entity, errors.WithStack(err))
		}
		if err != nil {
			return zero, s.fail(gen, KindFetch, entity, errors.WithStack(err))
		}
		return it, nil
	})
}

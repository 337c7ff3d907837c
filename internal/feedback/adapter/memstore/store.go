// Package memstore is an in-process push store implementing
// repository.RemoteStore. It backs the memory backend, the dev store server
// and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"

	"github.com/google/uuid"
)

// Store keeps documents per collection and fans every change out to the
// listeners whose query matches it.
type Store struct {
	mu        sync.Mutex
	docs      map[string]map[string]map[string]interface{}
	listeners map[uint64]*listener
	nextID    uint64

	rules      *Rules
	now        func() time.Time
	compensate bool
	logger     logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRules enforces rules on Listen and Write. Without it every call is allowed.
func WithRules(r *Rules) Option {
	return func(s *Store) { s.rules = r }
}

// WithClock replaces time.Now as the server clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLatencyCompensation makes writes carrying server timestamps reach
// listeners twice: first with the sentinel still in place (pending), then
// modified with the committed time.
func WithLatencyCompensation(enabled bool) Option {
	return func(s *Store) { s.compensate = enabled }
}

// New creates an empty store.
func New(log logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Store{
		docs:      make(map[string]map[string]map[string]interface{}),
		listeners: make(map[uint64]*listener),
		now:       time.Now,
		logger:    log.WithComponent("memstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen registers observer for q. The first batch holds every matching
// document as an addition, even when there are none.
func (s *Store) Listen(ctx context.Context, q model.Query, observer repository.BatchObserver) (repository.ListenerRegistration, error) {
	if err := q.Validate(); err != nil {
		return nil, apperrors.ErrUnsupportedQuery.New().WithCause(err)
	}
	uid, _ := contextkeys.UserIDFrom(ctx)
	if s.rules != nil {
		allowed, err := s.rules.AllowRead(uid, q)
		if !allowed {
			s.logger.WithContext(ctx).Warnf("listen on %s denied: %v", q.Collection, err)
			return nil, apperrors.ErrPermissionDenied.New().WithDetail("collection", q.Collection).WithCause(err)
		}
	}

	s.mu.Lock()
	s.nextID++
	l := newListener(s.nextID, q, observer)
	initial := model.DeltaBatch{Changes: []model.Change{}}
	for id, data := range s.docs[q.Collection] {
		if q.Matches(data) {
			initial.Changes = append(initial.Changes, model.Change{
				Type:     model.ChangeAdded,
				Document: model.Document{ID: id, Data: model.CloneData(data)},
			})
		}
	}
	l.enqueue(initial)
	s.listeners[l.id] = l
	s.mu.Unlock()

	go l.run()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, l.id)
			s.mu.Unlock()
			l.close()
		})
	}
	stop := context.AfterFunc(ctx, remove)

	s.logger.WithContext(ctx).Debugf("listener %d opened on %s", l.id, q.Collection)
	return repository.RegistrationFunc(func() {
		stop()
		remove()
	}), nil
}

// Write stores data under a new id. Server timestamps are resolved with the
// store clock.
func (s *Store) Write(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	if collection == "" {
		return "", apperrors.NewValidationError("collection is required")
	}
	now := s.now().UTC()
	uid, _ := contextkeys.UserIDFrom(ctx)
	if s.rules != nil {
		allowed, err := s.rules.AllowWrite(uid, collection, data, now)
		if !allowed {
			s.logger.WithContext(ctx).Warnf("write to %s denied: %v", collection, err)
			return "", apperrors.ErrPermissionDenied.New().WithDetail("collection", collection).WithCause(err)
		}
	}

	id := uuid.New().String()
	s.put(collection, id, data, now)
	s.logger.WithContext(ctx).Debugf("wrote %s/%s", collection, id)
	return id, nil
}

// Put creates or replaces a document without rule checks. Used for seeding
// and by tests.
func (s *Store) Put(collection, id string, data map[string]interface{}) {
	s.put(collection, id, data, s.now().UTC())
}

// Delete removes a document and notifies matching listeners.
func (s *Store) Delete(collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[collection][id]
	if !ok {
		return false
	}
	delete(s.docs[collection], id)
	for _, l := range s.listeners {
		if l.query.Collection == collection && l.query.Matches(data) {
			l.enqueue(model.DeltaBatch{Changes: []model.Change{{
				Type:     model.ChangeRemoved,
				Document: model.Document{ID: id, Data: model.CloneData(data)},
			}}})
		}
	}
	return true
}

// Interrupt fails every open listener with err, as a dropped connection would.
func (s *Store) Interrupt(err error) {
	s.mu.Lock()
	listeners := s.listeners
	s.listeners = make(map[uint64]*listener)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fail(err)
	}
}

// Get returns a copy of a stored document.
func (s *Store) Get(collection, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[collection][id]
	return model.CloneData(data), ok
}

// ListenerCount returns the number of open listeners.
func (s *Store) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *Store) put(collection, id string, data map[string]interface{}, now time.Time) {
	resolved := resolveTimestamps(data, now)
	pending := len(model.ServerTimestampFields(data)) > 0

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]map[string]interface{})
		s.docs[collection] = coll
	}
	previous, existed := coll[id]
	coll[id] = resolved

	for _, l := range s.listeners {
		if l.query.Collection != collection {
			continue
		}
		matchesNow := l.query.Matches(resolved)
		matchedBefore := existed && l.query.Matches(previous)
		switch {
		case matchesNow && !matchedBefore:
			if s.compensate && pending {
				l.enqueue(batchOf(model.ChangeAdded, id, model.CloneData(data)))
				l.enqueue(batchOf(model.ChangeModified, id, model.CloneData(resolved)))
				continue
			}
			l.enqueue(batchOf(model.ChangeAdded, id, model.CloneData(resolved)))
		case matchesNow:
			l.enqueue(batchOf(model.ChangeModified, id, model.CloneData(resolved)))
		case matchedBefore:
			l.enqueue(batchOf(model.ChangeRemoved, id, model.CloneData(previous)))
		}
	}
}

func batchOf(kind model.ChangeType, id string, data map[string]interface{}) model.DeltaBatch {
	return model.DeltaBatch{Changes: []model.Change{{Type: kind, Document: model.Document{ID: id, Data: data}}}}
}

// listener delivers batches in order from its own goroutine.
type listener struct {
	id       uint64
	query    model.Query
	observer repository.BatchObserver

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []model.DeltaBatch
	err    error
	closed bool
}

func newListener(id uint64, q model.Query, observer repository.BatchObserver) *listener {
	l := &listener{id: id, query: q, observer: observer}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *listener) enqueue(b model.DeltaBatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.err != nil {
		return
	}
	l.queue = append(l.queue, b)
	l.cond.Signal()
}

func (l *listener) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.err != nil {
		return
	}
	l.err = err
	l.cond.Signal()
}

func (l *listener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
	l.cond.Signal()
}

func (l *listener) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && l.err == nil && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			err := l.err
			l.closed = true
			l.mu.Unlock()
			l.observer.OnError(err)
			return
		}
		b := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.observer.OnBatch(b)
	}
}

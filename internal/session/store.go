// Package session holds the authenticated profile for the process and
// notifies dependents when it changes.
package session

import (
	"sync"

	"feedback-sync/internal/session/model"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/notify"
)

// Listener receives every profile change. prev and next are copies; nil
// means no profile. A listener may call Set; that change is delivered to
// every listener after the current round of notifications.
type Listener func(prev, next *model.Profile)

// Store owns the current profile. The zero value is not usable; use NewStore.
type Store struct {
	// outbox delivers notifications in mutation order outside mu.
	outbox notify.Queue

	mu        sync.RWMutex
	current   *model.Profile
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64

	logger logger.Logger
}

// NewStore creates an empty session store.
func NewStore(log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		listeners: make(map[uint64]Listener),
		logger:    log.WithComponent("session-store"),
	}
}

// Current returns a copy of the profile, or false when nobody is signed in.
func (s *Store) Current() (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Profile{}, false
	}
	return *s.current, true
}

// Set replaces the profile wholesale and notifies every listener before
// returning, unless Set is called from a listener or while another goroutine
// is delivering; the change is then delivered by that delivery, in order.
// A nil profile clears the session.
func (s *Store) Set(p *model.Profile) {
	s.mu.Lock()
	prev := s.current
	var next *model.Profile
	if p != nil {
		cp := *p
		next = &cp
	}
	s.current = next
	listeners := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		listeners = append(listeners, s.listeners[id])
	}
	s.outbox.Enqueue(func() {
		for _, l := range listeners {
			l(copyProfile(prev), copyProfile(next))
		}
	})
	s.mu.Unlock()

	if next != nil {
		s.logger.WithFields(map[string]interface{}{"user_id": next.Identity}).Debug("session profile set")
	} else {
		s.logger.Debug("session profile cleared")
	}
	s.outbox.Drain()
}

// Clear removes the profile.
func (s *Store) Clear() {
	s.Set(nil)
}

// Subscribe registers l for future changes. It does not replay the current
// profile. The returned function unregisters l.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func copyProfile(p *model.Profile) *model.Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	sessionmodel "feedback-sync/internal/session/model"
	"feedback-sync/internal/shared/eventbus"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeStore records Listen calls and lets tests drive deliveries by hand.
// Write goes through testify's mock.
type fakeStore struct {
	mock.Mock

	mu        sync.Mutex
	listeners []*fakeListener
	listenErr error
}

type fakeListener struct {
	query    model.Query
	observer repository.BatchObserver
	removed  atomic.Bool
}

func (f *fakeStore) Listen(ctx context.Context, q model.Query, obs repository.BatchObserver) (repository.ListenerRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	l := &fakeListener{query: q, observer: obs}
	f.listeners = append(f.listeners, l)
	return repository.RegistrationFunc(func() { l.removed.Store(true) }), nil
}

func (f *fakeStore) Write(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	args := f.Called(ctx, collection, data)
	return args.String(0), args.Error(1)
}

func (f *fakeStore) setListenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenErr = err
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeStore) last(t *testing.T) *fakeListener {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.listeners, "expected an open listener")
	return f.listeners[len(f.listeners)-1]
}

func (l *fakeListener) push(changes ...model.Change) {
	l.observer.OnBatch(model.DeltaBatch{Changes: changes})
}

func profileFor(id string) *sessionmodel.Profile {
	return &sessionmodel.Profile{Identity: id, DisplayName: "Name " + id, AccessLevel: sessionmodel.AccessLevelUser}
}

func ts(sec int) time.Time {
	return time.Date(2025, 5, 1, 12, 0, sec, 0, time.UTC)
}

func doc(id, owner string, createdAt interface{}) model.Document {
	data := map[string]interface{}{
		model.FieldUserID:  owner,
		model.FieldName:    "Name " + owner,
		model.FieldRating:  float64(4),
		model.FieldComment: "a perfectly fine comment",
	}
	if createdAt != nil {
		data[model.FieldCreatedAt] = createdAt
	}
	return model.Document{ID: id, Data: data}
}

func added(d model.Document) model.Change    { return model.Change{Type: model.ChangeAdded, Document: d} }
func modified(d model.Document) model.Change { return model.Change{Type: model.ChangeModified, Document: d} }
func removed(id string) model.Change {
	return model.Change{Type: model.ChangeRemoved, Document: model.Document{ID: id}}
}

// recordEvents captures every event of the given types published on bus.
func recordEvents(bus *eventbus.EventBus, types ...string) *[]eventbus.Event {
	var mu sync.Mutex
	events := &[]eventbus.Event{}
	for _, typ := range types {
		bus.Subscribe(typ, func(ctx context.Context, e eventbus.Event) error {
			mu.Lock()
			defer mu.Unlock()
			*events = append(*events, e)
			return nil
		})
	}
	return events
}

func eventTypes(events []eventbus.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type())
	}
	return out
}

// open counts listeners that have not been removed.
func (f *fakeStore) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.listeners {
		if !l.removed.Load() {
			n++
		}
	}
	return n
}

package repository

import (
	"context"

	"feedback-sync/internal/feedback/domain/model"
)

// BatchObserver receives the deliveries of one Listen call.
type BatchObserver interface {
	// OnBatch is called once per delta batch, in delivery order. The first
	// batch after Listen carries the matching documents as additions.
	OnBatch(batch model.DeltaBatch)
	// OnError reports a terminal delivery failure. No batches follow it.
	OnError(err error)
}

// ListenerRegistration cancels a live listener. Remove is idempotent and does
// not wait for a callback already in progress; observers discard late deliveries.
type ListenerRegistration interface {
	Remove()
}

// RemoteStore is the push-capable document store the client core consumes.
type RemoteStore interface {
	// Listen opens a filtered live query. Documents outside the query filter
	// are never delivered. The observer is never invoked from within Listen;
	// deliveries run on a goroutine owned by the store.
	Listen(ctx context.Context, query model.Query, observer BatchObserver) (ListenerRegistration, error)

	// Write creates a document and returns its store-assigned id. Values equal
	// to model.ServerTimestamp are replaced by the store clock. The write is
	// visible to the writer's own listeners.
	Write(ctx context.Context, collection string, data map[string]interface{}) (string, error)
}

// ObserverFuncs adapts two functions to BatchObserver.
type ObserverFuncs struct {
	Batch func(model.DeltaBatch)
	Error func(error)
}

func (o ObserverFuncs) OnBatch(batch model.DeltaBatch) {
	if o.Batch != nil {
		o.Batch(batch)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// RegistrationFunc adapts a function to ListenerRegistration.
type RegistrationFunc func()

func (f RegistrationFunc) Remove() { f() }

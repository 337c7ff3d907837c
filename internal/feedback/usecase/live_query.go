package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/session"
	sessionmodel "feedback-sync/internal/session/model"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/eventbus"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/notify"

	"github.com/google/uuid"
)

// Update is what LiveQuery consumers receive. Err is non-nil while the
// subscription is degraded; Snapshot is then the last good one.
type Update struct {
	Snapshot model.Snapshot
	Err      error
}

// UpdateFunc consumes updates in publication order. It runs after the live
// query has released its locks, so it may sign out through the session
// store or call Retry; the updates that causes are delivered after it returns.
type UpdateFunc func(Update)

// LiveQuery keeps the signed-in user's records in sync with the remote store.
type LiveQuery struct {
	store      repository.RemoteStore
	sessions   *session.Store
	bus        eventbus.Bus
	logger     logger.Logger
	collection string

	// reactMu serializes session changes, batches and errors. Bus events and
	// consumer notifications are queued under it and delivered after release.
	reactMu sync.Mutex
	outbox  notify.Queue
	baseCtx context.Context
	unbind  func()
	handle  *subscriptionHandle
	working map[string]model.FeedbackRecord
	version uint64

	// stateMu guards what readers and consumer registration touch.
	stateMu   sync.RWMutex
	snapshot  model.Snapshot
	degraded  error
	consumers map[uint64]UpdateFunc
	order     []uint64
	nextID    uint64
}

// NewLiveQuery creates a live query over collection. It does nothing until Start.
func NewLiveQuery(store repository.RemoteStore, sessions *session.Store, bus eventbus.Bus, log logger.Logger, collection string) *LiveQuery {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if collection == "" {
		collection = model.CollectionFeedbacks
	}
	return &LiveQuery{
		store:      store,
		sessions:   sessions,
		bus:        bus,
		logger:     log.WithComponent("live-query"),
		collection: collection,
		working:    make(map[string]model.FeedbackRecord),
		snapshot:   model.EmptySnapshot("", 0),
		consumers:  make(map[uint64]UpdateFunc),
	}
}

// Start binds the live query to the session store and reacts to the
// current profile. ctx bounds every subscription opened afterwards.
func (lq *LiveQuery) Start(ctx context.Context) error {
	lq.reactMu.Lock()
	defer lq.outbox.Drain()
	defer lq.reactMu.Unlock()

	if lq.unbind != nil {
		return fmt.Errorf("live query already started")
	}
	lq.baseCtx = ctx
	lq.unbind = lq.sessions.Subscribe(func(_, next *sessionmodel.Profile) {
		lq.onProfile(next)
	})

	// Changes made after Subscribe wait on reactMu and are applied next.
	if p, ok := lq.sessions.Current(); ok {
		lq.openLocked(p.Identity)
	}
	return nil
}

// Stop unbinds from the session store and closes any open subscription.
func (lq *LiveQuery) Stop() {
	lq.reactMu.Lock()
	defer lq.outbox.Drain()
	defer lq.reactMu.Unlock()

	if lq.unbind != nil {
		lq.unbind()
		lq.unbind = nil
	}
	if lq.handle != nil {
		lq.teardownLocked()
	}
}

// Retry reopens the subscription for the current profile. It is the only
// way to recover from a delivery error.
func (lq *LiveQuery) Retry(ctx context.Context) error {
	lq.reactMu.Lock()
	defer lq.outbox.Drain()
	defer lq.reactMu.Unlock()

	p, ok := lq.sessions.Current()
	if !ok {
		return apperrors.ErrUnauthenticated.New().WithComponent("live-query")
	}
	if lq.unbind == nil {
		return fmt.Errorf("live query not started")
	}
	if lq.handle != nil {
		lq.teardownLocked()
	}
	lq.logger.WithContext(contextkeys.WithUserID(ctx, p.Identity)).Info("retrying subscription")
	lq.openLocked(p.Identity)
	return nil
}

// Subscribe registers fn for future updates. Use Snapshot for the current state.
func (lq *LiveQuery) Subscribe(fn UpdateFunc) func() {
	lq.stateMu.Lock()
	defer lq.stateMu.Unlock()

	lq.nextID++
	id := lq.nextID
	lq.consumers[id] = fn
	lq.order = append(lq.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			lq.stateMu.Lock()
			defer lq.stateMu.Unlock()
			delete(lq.consumers, id)
			for i, v := range lq.order {
				if v == id {
					lq.order = append(lq.order[:i:i], lq.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Snapshot returns the most recently published snapshot.
func (lq *LiveQuery) Snapshot() model.Snapshot {
	lq.stateMu.RLock()
	defer lq.stateMu.RUnlock()
	return lq.snapshot
}

// Degraded returns the delivery error of the current subscription, or nil.
func (lq *LiveQuery) Degraded() error {
	lq.stateMu.RLock()
	defer lq.stateMu.RUnlock()
	return lq.degraded
}

func (lq *LiveQuery) onProfile(next *sessionmodel.Profile) {
	lq.reactMu.Lock()
	defer lq.outbox.Drain()
	defer lq.reactMu.Unlock()

	if lq.unbind == nil {
		return
	}

	if next == nil {
		if lq.handle != nil {
			lq.teardownLocked()
		}
		return
	}

	if lq.handle != nil {
		if lq.handle.owner == next.Identity {
			return
		}
		lq.teardownLocked()
	}
	lq.openLocked(next.Identity)
}

func (lq *LiveQuery) openLocked(owner string) {
	h := newSubscriptionHandle(lq, owner)
	lq.handle = h
	lq.working = make(map[string]model.FeedbackRecord)

	log := lq.logger.WithContext(h.ctx)
	query := model.OwnerQuery(lq.collection, owner)

	reg, err := lq.store.Listen(h.ctx, query, h)
	if err != nil {
		cause := apperrors.ErrListenFailed.New().WithCause(err)
		log.Errorf("failed to open subscription: %v", err)
		lq.degradeLocked(h, cause)
		return
	}
	h.reg = reg

	log.Info("subscription opened")
	lq.emit(h.ctx, eventbus.EventTypeSubscriptionOpened, eventbus.SubscriptionPayload{
		SubscriptionID: h.id,
		OwnerID:        owner,
	})
}

func (lq *LiveQuery) teardownLocked() {
	h := lq.handle
	lq.handle = nil
	h.close()

	lq.working = make(map[string]model.FeedbackRecord)
	lq.version++
	empty := model.EmptySnapshot("", lq.version)

	lq.logger.WithContext(h.ctx).Info("subscription closed")
	lq.emit(h.ctx, eventbus.EventTypeSubscriptionClosed, eventbus.SubscriptionPayload{
		SubscriptionID: h.id,
		OwnerID:        h.owner,
	})
	lq.publishLocked(h.ctx, nil, empty, nil)
}

func (lq *LiveQuery) applyBatch(h *subscriptionHandle, batch model.DeltaBatch) {
	lq.reactMu.Lock()
	defer lq.outbox.Drain()
	defer lq.reactMu.Unlock()

	if h.isClosed() || h != lq.handle {
		lq.logger.Debugf("discarding batch for closed subscription %s", h.id)
		return
	}

	log := lq.logger.WithContext(h.ctx)
	for _, change := range batch.Changes {
		id := change.Document.ID
		if change.Type == model.ChangeRemoved {
			delete(lq.working, id)
			continue
		}

		rec, err := model.Normalize(change.Document)
		if err != nil {
			delete(lq.working, id)
			log.Warnf("dropping malformed document: %v", err)
			lq.emit(h.ctx, eventbus.EventTypeRecordDropped, eventbus.RecordDroppedPayload{
				RecordID: id,
				Reason:   eventbus.DropReasonMalformed,
			})
			continue
		}
		if rec.OwnerID != h.owner {
			delete(lq.working, id)
			log.WithFields(map[string]interface{}{
				"record_id": id,
				"owner_id":  rec.OwnerID,
			}).Warn("dropping record owned by another user")
			lq.emit(h.ctx, eventbus.EventTypeRecordDropped, eventbus.RecordDroppedPayload{
				RecordID: id,
				Reason:   eventbus.DropReasonOwnerMismatch,
			})
			continue
		}
		lq.working[id] = rec
	}

	lq.version++
	snap := model.BuildSnapshot(h.owner, lq.version, lq.working)
	log.Debugf("applied batch of %d changes, %d records", len(batch.Changes), snap.Len())
	lq.publishLocked(h.ctx, h, snap, nil)
}

func (lq *LiveQuery) failSubscription(h *subscriptionHandle, err error) {
	lq.reactMu.Lock()
	defer lq.outbox.Drain()
	defer lq.reactMu.Unlock()

	if h.isClosed() || h != lq.handle {
		return
	}
	lq.logger.WithContext(h.ctx).Errorf("subscription delivery failed: %v", err)
	lq.degradeLocked(h, apperrors.ErrSubscriptionDegraded.New().WithCause(err))
}

func (lq *LiveQuery) degradeLocked(h *subscriptionHandle, cause error) {
	lq.emit(h.ctx, eventbus.EventTypeSubscriptionDegraded, eventbus.SubscriptionPayload{
		SubscriptionID: h.id,
		OwnerID:        h.owner,
		Err:            cause,
	})
	lq.publishLocked(h.ctx, h, lq.Snapshot(), cause)
}

// publishLocked stores the new state and queues the consumer notification.
// Updates for h are skipped if h is closed by the time they are delivered;
// a nil h is always delivered.
func (lq *LiveQuery) publishLocked(ctx context.Context, h *subscriptionHandle, snap model.Snapshot, err error) {
	lq.stateMu.Lock()
	lq.snapshot = snap
	lq.degraded = err
	consumers := make([]UpdateFunc, 0, len(lq.order))
	for _, id := range lq.order {
		consumers = append(consumers, lq.consumers[id])
	}
	lq.stateMu.Unlock()

	if err == nil {
		lq.emit(ctx, eventbus.EventTypeSnapshotPublished, eventbus.SnapshotPayload{
			OwnerID: snap.Owner(),
			Version: snap.Version(),
			Size:    snap.Len(),
		})
	}

	update := Update{Snapshot: snap, Err: err}
	lq.outbox.Enqueue(func() {
		if h != nil && h.isClosed() {
			return
		}
		for _, fn := range consumers {
			fn(update)
		}
	})
}

// emit queues a bus event behind the notifications already pending.
func (lq *LiveQuery) emit(ctx context.Context, eventType string, data interface{}) {
	if lq.bus == nil {
		return
	}
	event := eventbus.NewBasicEventWithSource(eventType, data, "live-query")
	lq.outbox.Enqueue(func() {
		if err := lq.bus.Publish(ctx, event); err != nil {
			lq.logger.Warnf("event %s handler failed: %v", eventType, err)
		}
	})
}

// subscriptionHandle owns one open subscription: its registration, its
// context and the closed flag callbacks are checked against.
type subscriptionHandle struct {
	id     string
	owner  string
	lq     *LiveQuery
	ctx    context.Context
	cancel context.CancelFunc
	reg    repository.ListenerRegistration
	closed atomic.Bool
}

func newSubscriptionHandle(lq *LiveQuery, owner string) *subscriptionHandle {
	base := lq.baseCtx
	if base == nil {
		base = context.Background()
	}
	id := uuid.NewString()
	ctx := contextkeys.WithUserID(base, owner)
	ctx = context.WithValue(ctx, contextkeys.SubscriptionIDKey, id)
	ctx, cancel := context.WithCancel(ctx)
	return &subscriptionHandle{id: id, owner: owner, lq: lq, ctx: ctx, cancel: cancel}
}

// OnBatch implements repository.BatchObserver.
func (h *subscriptionHandle) OnBatch(batch model.DeltaBatch) {
	if h.isClosed() {
		return
	}
	h.lq.applyBatch(h, batch)
}

// OnError implements repository.BatchObserver.
func (h *subscriptionHandle) OnError(err error) {
	if h.isClosed() {
		return
	}
	h.lq.failSubscription(h, err)
}

func (h *subscriptionHandle) isClosed() bool {
	return h.closed.Load()
}

func (h *subscriptionHandle) close() {
	if h.closed.Swap(true) {
		return
	}
	if h.reg != nil {
		h.reg.Remove()
	}
	h.cancel()
}

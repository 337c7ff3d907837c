// Package mongostore implements repository.RemoteStore on MongoDB change
// streams. It needs a replica set (or a single-node replica set in dev).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store pushes per-query deltas read from a MongoDB change stream.
type Store struct {
	db     *mongo.Database
	logger logger.Logger
}

// New creates a store over db.
func New(db *mongo.Database, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{db: db, logger: log.WithComponent("mongostore")}
}

// changeEvent is the subset of a change stream event the store reads.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

// Write upserts a new document. Server timestamp fields are set to $$NOW by
// an update pipeline so the database clock decides them.
func (s *Store) Write(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	set := bson.M{}
	for k, v := range data {
		if model.IsServerTimestamp(v) {
			set[k] = "$$NOW"
			continue
		}
		set[k] = bson.M{"$literal": v}
	}

	id := uuid.New().String()
	update := mongo.Pipeline{{{Key: "$set", Value: set}}}
	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		s.logger.WithContext(ctx).Errorf("failed to write %s/%s: %v", collection, id, err)
		return "", apperrors.NewTransportError("mongo write failed").WithCause(err)
	}
	return id, nil
}

// Delete removes a document by id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

// Listen opens the change stream before reading the initial set so no write
// falls between the two. Duplicates are harmless to consumers.
func (s *Store) Listen(ctx context.Context, q model.Query, observer repository.BatchObserver) (repository.ListenerRegistration, error) {
	if err := q.Validate(); err != nil {
		return nil, apperrors.ErrUnsupportedQuery.New().WithCause(err)
	}
	coll := s.db.Collection(q.Collection)
	filter := filterOf(q)

	ctx, cancel := context.WithCancel(ctx)
	stream, err := coll.Watch(ctx, streamPipeline(q),
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, apperrors.NewTransportError("failed to open change stream").WithCause(err)
	}

	cur, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, apperrors.NewTransportError("failed to read initial documents").WithCause(err)
	}
	var raw []bson.M
	err = cur.All(ctx, &raw)
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, apperrors.NewTransportError("failed to read initial documents").WithCause(err)
	}

	w := &watcher{
		query:    q,
		stream:   stream,
		observer: observer,
		cancel:   cancel,
		known:    make(map[string]struct{}),
		logger:   s.logger.WithContext(ctx),
	}
	initial := model.DeltaBatch{Changes: make([]model.Change, 0, len(raw))}
	for _, m := range raw {
		doc := toDocument(m)
		w.known[doc.ID] = struct{}{}
		initial.Changes = append(initial.Changes, model.Change{Type: model.ChangeAdded, Document: doc})
	}
	go w.run(ctx, initial)

	return repository.RegistrationFunc(w.remove), nil
}

func filterOf(q model.Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Filters {
		filter[f.Field] = f.Value
	}
	return filter
}

// streamPipeline filters server side: inserts, updates and replaces reach the
// watcher only when the document matches the query, or, for updates, when a
// filtered field itself changed so a known document may have left the query.
// Deletes carry no document and pass through; the watcher drops unknown ids.
func streamPipeline(q model.Query) mongo.Pipeline {
	matching := bson.M{}
	leaving := bson.A{}
	for _, f := range q.Filters {
		matching["fullDocument."+f.Field] = f.Value
		leaving = append(leaving,
			bson.M{"updateDescription.updatedFields." + f.Field: bson.M{"$exists": true}},
			bson.M{"updateDescription.removedFields": f.Field},
		)
	}

	or := bson.A{
		bson.M{"$and": bson.A{
			bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace"}}},
			matching,
		}},
		bson.M{"operationType": "delete"},
	}
	if len(leaving) > 0 {
		or = append(or, bson.M{"$and": bson.A{
			bson.M{"operationType": "update"},
			bson.M{"$or": leaving},
		}})
	}
	return mongo.Pipeline{{{Key: "$match", Value: bson.M{"$or": or}}}}
}

type watcher struct {
	query    model.Query
	stream   *mongo.ChangeStream
	observer repository.BatchObserver
	cancel   context.CancelFunc
	logger   logger.Logger

	// known holds the ids this listener has delivered and not removed.
	known map[string]struct{}

	once    sync.Once
	removed atomic.Bool
}

func (w *watcher) remove() {
	w.once.Do(func() {
		w.removed.Store(true)
		w.cancel()
	})
}

func (w *watcher) run(ctx context.Context, initial model.DeltaBatch) {
	defer w.stream.Close(context.Background())

	if !w.deliver(initial) {
		return
	}
	for w.stream.Next(ctx) {
		var ev changeEvent
		if err := w.stream.Decode(&ev); err != nil {
			w.logger.Warnf("skipping undecodable change event: %v", err)
			continue
		}
		change, ok := w.translate(ev)
		if !ok {
			continue
		}
		if !w.deliver(model.DeltaBatch{Changes: []model.Change{change}}) {
			return
		}
	}
	if err := w.stream.Err(); err != nil && !w.removed.Load() && !errors.Is(err, context.Canceled) {
		w.logger.Errorf("change stream for %s failed: %v", w.query.Collection, err)
		w.observer.OnError(apperrors.NewTransportError("change stream failed").WithCause(err))
	}
}

// translate maps a change event onto this listener's view of the collection.
func (w *watcher) translate(ev changeEvent) (model.Change, bool) {
	id := ev.DocumentKey.ID
	_, known := w.known[id]

	if ev.OperationType == "delete" || ev.FullDocument == nil {
		if !known {
			return model.Change{}, false
		}
		delete(w.known, id)
		return model.Change{Type: model.ChangeRemoved, Document: model.Document{ID: id}}, true
	}

	doc := toDocument(ev.FullDocument)
	switch {
	case w.query.Matches(doc.Data) && known:
		return model.Change{Type: model.ChangeModified, Document: doc}, true
	case w.query.Matches(doc.Data):
		w.known[id] = struct{}{}
		return model.Change{Type: model.ChangeAdded, Document: doc}, true
	case known:
		delete(w.known, id)
		return model.Change{Type: model.ChangeRemoved, Document: model.Document{ID: id}}, true
	}
	return model.Change{}, false
}

func (w *watcher) deliver(b model.DeltaBatch) bool {
	if w.removed.Load() {
		return false
	}
	w.observer.OnBatch(b)
	return true
}

// toDocument strips _id and converts BSON values to plain Go values.
func toDocument(m bson.M) model.Document {
	doc := model.Document{ID: fmt.Sprint(m["_id"]), Data: make(map[string]interface{}, len(m))}
	for k, v := range m {
		if k == "_id" {
			continue
		}
		doc.Data[k] = fromBSON(v)
	}
	return doc
}

func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = fromBSON(vv)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = fromBSON(vv)
		}
		return out
	}
	return v
}

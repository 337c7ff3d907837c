// Package redisstore implements repository.RemoteStore on Redis. Every
// owner has a stream {collection}:owner:{uid} holding the change log of their
// documents; the latest version of each document is also kept in a hash.
package redisstore

import (
	"context"
	"encoding/json"
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
	"github.com/redis/go-redis/v9"
)

const defaultBlock = time.Second

// Store is a Redis Streams backed push store. Listen only accepts the owner
// query (a single equality filter on userId).
type Store struct {
	client *redis.Client
	logger logger.Logger
	block  time.Duration
}

// New creates a store over client.
func New(client *redis.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{client: client, logger: log.WithComponent("redisstore"), block: defaultBlock}
}

func streamKey(collection, owner string) string {
	return fmt.Sprintf("%s:owner:%s", collection, owner)
}

func docKey(collection, id string) string {
	return fmt.Sprintf("%s:doc:%s", collection, id)
}

// ownerOf extracts the owner a query is keyed on.
func ownerOf(q model.Query) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	if len(q.Filters) != 1 || q.Filters[0].Field != model.FieldUserID {
		return "", fmt.Errorf("only a single %s equality filter is supported", model.FieldUserID)
	}
	owner, ok := q.Filters[0].Value.(string)
	if !ok || owner == "" {
		return "", fmt.Errorf("%s filter value must be a non-empty string", model.FieldUserID)
	}
	return owner, nil
}

// Write stores data under a new id and appends an added entry to the owner's
// stream in one transaction. Server timestamps come from the Redis clock.
func (s *Store) Write(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	owner, ok := data[model.FieldUserID].(string)
	if !ok || owner == "" {
		return "", apperrors.NewValidationError("document must carry a userId")
	}

	resolved := model.CloneData(data)
	if fields := model.ServerTimestampFields(data); len(fields) > 0 {
		now, err := s.client.Time(ctx).Result()
		if err != nil {
			return "", apperrors.NewTransportError("failed to read server time").WithCause(err)
		}
		for _, f := range fields {
			resolved[f] = now.UTC().Format(time.RFC3339Nano)
		}
	}
	payload, err := json.Marshal(resolved)
	if err != nil {
		return "", apperrors.NewValidationError("document is not serializable").WithCause(err)
	}

	id := uuid.New().String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, docKey(collection, id), "owner", owner, "data", payload)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(collection, owner),
			Values: map[string]interface{}{
				"type": string(model.ChangeAdded),
				"id":   id,
				"data": payload,
			},
		})
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).Errorf("failed to write %s/%s: %v", collection, id, err)
		return "", apperrors.NewTransportError("redis write failed").WithCause(err)
	}
	return id, nil
}

// Delete removes a document and appends a removed entry to its owner's stream.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	owner, err := s.client.HGet(ctx, docKey(collection, id), "owner").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apperrors.NewNotFoundError("document")
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(collection, id))
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(collection, owner),
			Values: map[string]interface{}{"type": string(model.ChangeRemoved), "id": id},
		})
		return nil
	})
	return err
}

// Listen replays the owner's stream into one initial batch, then tails it.
func (s *Store) Listen(ctx context.Context, q model.Query, observer repository.BatchObserver) (repository.ListenerRegistration, error) {
	owner, err := ownerOf(q)
	if err != nil {
		return nil, apperrors.ErrUnsupportedQuery.New().WithCause(err)
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.NewTransportError("redis unreachable").WithCause(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &tail{
		store:    s,
		stream:   streamKey(q.Collection, owner),
		observer: observer,
		cancel:   cancel,
		logger:   s.logger.WithContext(ctx),
	}
	go t.run(ctx)

	return repository.RegistrationFunc(t.remove), nil
}

type tail struct {
	store    *Store
	stream   string
	observer repository.BatchObserver
	cancel   context.CancelFunc
	logger   logger.Logger

	once    sync.Once
	removed atomic.Bool
}

func (t *tail) remove() {
	t.once.Do(func() {
		t.removed.Store(true)
		t.cancel()
	})
}

func (t *tail) run(ctx context.Context) {
	initial, lastID, err := t.replay(ctx)
	if err != nil {
		t.fail(ctx, err)
		return
	}
	if !t.deliver(initial) {
		return
	}

	for {
		streams, err := t.store.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{t.stream, lastID},
			Count:   100,
			Block:   t.store.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			t.fail(ctx, err)
			return
		}
		for _, stream := range streams {
			batch := model.DeltaBatch{}
			for _, msg := range stream.Messages {
				lastID = msg.ID
				change, err := decodeEntry(msg)
				if err != nil {
					t.logger.Warnf("skipping stream entry %s: %v", msg.ID, err)
					continue
				}
				batch.Changes = append(batch.Changes, change)
			}
			if len(batch.Changes) > 0 && !t.deliver(batch) {
				return
			}
		}
	}
}

// replay folds the stream into the current document set.
func (t *tail) replay(ctx context.Context) (model.DeltaBatch, string, error) {
	msgs, err := t.store.client.XRange(ctx, t.stream, "-", "+").Result()
	if err != nil {
		return model.DeltaBatch{}, "", err
	}
	lastID := "0"
	current := make(map[string]model.Change)
	var order []string
	for _, msg := range msgs {
		lastID = msg.ID
		change, err := decodeEntry(msg)
		if err != nil {
			t.logger.Warnf("skipping stream entry %s: %v", msg.ID, err)
			continue
		}
		id := change.Document.ID
		if change.Type == model.ChangeRemoved {
			delete(current, id)
			continue
		}
		if _, seen := current[id]; !seen {
			order = append(order, id)
		}
		change.Type = model.ChangeAdded
		current[id] = change
	}
	batch := model.DeltaBatch{Changes: []model.Change{}}
	for _, id := range order {
		if c, ok := current[id]; ok {
			batch.Changes = append(batch.Changes, c)
		}
	}
	return batch, lastID, nil
}

func (t *tail) deliver(b model.DeltaBatch) bool {
	if t.removed.Load() {
		return false
	}
	t.observer.OnBatch(b)
	return true
}

func (t *tail) fail(ctx context.Context, err error) {
	if t.removed.Load() || ctx.Err() != nil {
		return
	}
	t.logger.Errorf("stream %s failed: %v", t.stream, err)
	t.observer.OnError(apperrors.NewTransportError("redis stream failed").WithCause(err))
}

func decodeEntry(msg redis.XMessage) (model.Change, error) {
	kind, _ := msg.Values["type"].(string)
	id, _ := msg.Values["id"].(string)
	if id == "" {
		return model.Change{}, fmt.Errorf("entry has no id")
	}
	change := model.Change{Type: model.ChangeType(kind), Document: model.Document{ID: id}}
	switch change.Type {
	case model.ChangeRemoved:
		return change, nil
	case model.ChangeAdded, model.ChangeModified:
	default:
		return model.Change{}, fmt.Errorf("unknown change type %q", kind)
	}
	raw, _ := msg.Values["data"].(string)
	if err := json.Unmarshal([]byte(raw), &change.Document.Data); err != nil {
		return model.Change{}, fmt.Errorf("invalid data: %w", err)
	}
	return change, nil
}

package usecase

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"feedback-sync/internal/feedback/domain/model"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/session"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/eventbus"
	"feedback-sync/internal/shared/logger"
)

// MinCommentLength is counted in runes after trimming surrounding whitespace.
const MinCommentLength = 10

// SubmitRequest is the user input of one submission.
type SubmitRequest struct {
	Rating   int
	Comment  string
	ImageURL string
}

// SubmissionPipeline validates and writes new feedback records. A record
// becomes visible only through the live query, never by local insertion.
type SubmissionPipeline struct {
	store      repository.RemoteStore
	sessions   *session.Store
	bus        eventbus.Bus
	logger     logger.Logger
	collection string

	inFlight atomic.Bool
}

// NewSubmissionPipeline creates a pipeline writing to collection.
func NewSubmissionPipeline(store repository.RemoteStore, sessions *session.Store, bus eventbus.Bus, log logger.Logger, collection string) *SubmissionPipeline {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if collection == "" {
		collection = model.CollectionFeedbacks
	}
	return &SubmissionPipeline{
		store:      store,
		sessions:   sessions,
		bus:        bus,
		logger:     log.WithComponent("submission"),
		collection: collection,
	}
}

// InFlight reports whether a submission is being written.
func (p *SubmissionPipeline) InFlight() bool {
	return p.inFlight.Load()
}

// Submit validates req against the current profile and performs exactly one
// write. It returns the store-assigned id.
func (p *SubmissionPipeline) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return "", apperrors.ErrSubmissionInFlight.New().WithComponent("submission")
	}
	defer p.inFlight.Store(false)

	profile, ok := p.sessions.Current()
	if !ok {
		return "", apperrors.ErrUnauthenticated.New().WithComponent("submission")
	}
	if req.Rating < model.MinRating || req.Rating > model.MaxRating {
		return "", apperrors.ErrRatingOutOfRange.New().WithDetail("rating", req.Rating)
	}
	comment := strings.TrimSpace(req.Comment)
	if n := utf8.RuneCountInString(comment); n < MinCommentLength {
		return "", apperrors.ErrCommentTooShort.New().WithDetail("length", n)
	}

	data := map[string]interface{}{
		model.FieldUserID:    profile.Identity,
		model.FieldName:      profile.DisplayName,
		model.FieldRating:    req.Rating,
		model.FieldComment:   comment,
		model.FieldCreatedAt: model.ServerTimestamp,
	}
	if url := strings.TrimSpace(req.ImageURL); url != "" {
		data[model.FieldImageURL] = url
	}

	ctx = contextkeys.WithUserID(ctx, profile.Identity)
	ctx = context.WithValue(ctx, contextkeys.OperationKey, "submit")
	log := p.logger.WithContext(ctx)

	p.emit(ctx, eventbus.EventTypeSubmissionStarted, eventbus.SubmissionPayload{OwnerID: profile.Identity})

	id, err := p.store.Write(ctx, p.collection, data)
	if err != nil {
		wrapped := apperrors.ErrWriteFailed.New().WithCause(err).WithComponent("submission")
		log.Errorf("feedback write failed: %v", err)
		p.emit(ctx, eventbus.EventTypeSubmissionFailed, eventbus.SubmissionPayload{
			OwnerID: profile.Identity,
			Err:     wrapped,
		})
		return "", wrapped
	}

	log.WithFields(map[string]interface{}{"record_id": id}).Info("feedback submitted")
	p.emit(ctx, eventbus.EventTypeSubmissionSucceeded, eventbus.SubmissionPayload{
		OwnerID:  profile.Identity,
		RecordID: id,
	})
	return id, nil
}

func (p *SubmissionPipeline) emit(ctx context.Context, eventType string, data interface{}) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventType, data, "submission")); err != nil {
		p.logger.Warnf("event %s handler failed: %v", eventType, err)
	}
}

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	apperrors "feedback-sync/internal/shared/errors"
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

var defaultParser = NewTimestampParser()

// Normalize converts a raw document into a FeedbackRecord. Any violation
// yields a malformed-document NormalizationError; the caller drops the document.
func Normalize(doc Document) (FeedbackRecord, error) {
	if doc.ID == "" {
		return FeedbackRecord{}, malformed(doc.ID, "id", "document id is empty")
	}

	owner, ok := doc.Data[FieldUserID].(string)
	if !ok || owner == "" {
		return FeedbackRecord{}, malformed(doc.ID, FieldUserID, "must be a non-empty string")
	}

	rating, err := normalizeRating(doc.Data[FieldRating])
	if err != nil {
		return FeedbackRecord{}, malformed(doc.ID, FieldRating, err.Error())
	}

	rec := FeedbackRecord{ID: doc.ID, OwnerID: owner, Rating: rating}

	for field, dst := range map[string]*string{
		FieldName:     &rec.DisplayName,
		FieldComment:  &rec.Comment,
		FieldImageURL: &rec.ImageURL,
	} {
		raw, present := doc.Data[field]
		if !present || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return FeedbackRecord{}, malformed(doc.ID, field, "must be a string")
		}
		*dst = s
	}

	createdAt, err := normalizeCreatedAt(doc.Data[FieldCreatedAt])
	if err != nil {
		return FeedbackRecord{}, malformed(doc.ID, FieldCreatedAt, err.Error())
	}
	rec.CreatedAt = createdAt

	return rec, nil
}

func normalizeRating(v interface{}) (int, error) {
	var n int64
	switch r := v.(type) {
	case int:
		n = int64(r)
	case int8:
		n = int64(r)
	case int16:
		n = int64(r)
	case int32:
		n = int64(r)
	case int64:
		n = r
	case uint8:
		n = int64(r)
	case uint16:
		n = int64(r)
	case uint32:
		n = int64(r)
	case uint:
		if uint64(r) > math.MaxInt64 {
			return 0, fmt.Errorf("must be between %d and %d, got %d", MinRating, MaxRating, r)
		}
		n = int64(r)
	case uint64:
		if r > math.MaxInt64 {
			return 0, fmt.Errorf("must be between %d and %d, got %d", MinRating, MaxRating, r)
		}
		n = int64(r)
	case uintptr:
		if uint64(r) > math.MaxInt64 {
			return 0, fmt.Errorf("must be between %d and %d, got %d", MinRating, MaxRating, r)
		}
		n = int64(r)
	case float32:
		f := float64(r)
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("must be an integer, got %v", r)
		}
		n = int64(f)
	case float64:
		if r != math.Trunc(r) || math.IsInf(r, 0) {
			return 0, fmt.Errorf("must be an integer, got %v", r)
		}
		n = int64(r)
	case json.Number:
		if i, err := r.Int64(); err == nil {
			n = i
			break
		}
		f, err := r.Float64()
		if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("must be an integer, got %q", r.String())
		}
		if f < math.MinInt64 || f > math.MaxInt64 {
			return 0, fmt.Errorf("must be between %d and %d, got %s", MinRating, MaxRating, r.String())
		}
		n = int64(f)
	case nil:
		return 0, fmt.Errorf("is required")
	default:
		return 0, fmt.Errorf("must be numeric, got %T", v)
	}
	if n < MinRating || n > MaxRating {
		return 0, fmt.Errorf("must be between %d and %d, got %d", MinRating, MaxRating, n)
	}
	return int(n), nil
}

func normalizeCreatedAt(v interface{}) (*time.Time, error) {
	if v == nil || IsServerTimestamp(v) {
		return nil, nil
	}
	t, ok := defaultParser.TryParseAsTimestamp(v)
	if !ok {
		return nil, fmt.Errorf("unrecognized timestamp %v (%T)", v, v)
	}
	return &t, nil
}

func malformed(id, field, reason string) error {
	err := apperrors.ErrMalformedDocument.New()
	err.Message = fmt.Sprintf("malformed document %q: %s %s", id, field, reason)
	return err.WithDetail("document_id", id).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

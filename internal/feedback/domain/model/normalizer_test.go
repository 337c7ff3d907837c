package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	apperrors "feedback-sync/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validData() map[string]interface{} {
	return map[string]interface{}{
		FieldUserID:    "u1",
		FieldName:      "Ana",
		FieldRating:    4,
		FieldComment:   "really good service",
		FieldCreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNormalize_Valid(t *testing.T) {
	rec, err := Normalize(Document{ID: "r1", Data: validData()})
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "u1", rec.OwnerID)
	assert.Equal(t, "Ana", rec.DisplayName)
	assert.Equal(t, 4, rec.Rating)
	assert.Equal(t, "really good service", rec.Comment)
	assert.Empty(t, rec.ImageURL)
	require.NotNil(t, rec.CreatedAt)
	assert.True(t, rec.CreatedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestNormalize_RatingRepresentations(t *testing.T) {
	tests := []struct {
		name    string
		rating  interface{}
		want    int
		wantErr bool
	}{
		{"int", 3, 3, false},
		{"int64", int64(5), 5, false},
		{"json float integral", float64(1), 1, false},
		{"json number", json.Number("2"), 2, false},
		{"fractional float", 2.5, 0, true},
		{"json number fractional", json.Number("2.5"), 0, true},
		{"json number integral float", json.Number("4.0"), 4, false},
		{"json number exponent", json.Number("3e0"), 3, false},
		{"json number garbage", json.Number("four"), 0, true},
		{"json number huge", json.Number("1e300"), 0, true},
		{"uint", uint(4), 4, false},
		{"uint8", uint8(2), 2, false},
		{"uint64", uint64(4), 4, false},
		{"uint64 overflow", uint64(math.MaxUint64), 0, true},
		{"uintptr", uintptr(5), 5, false},
		{"zero", 0, 0, true},
		{"six", 6, 0, true},
		{"negative", -1, 0, true},
		{"string", "5", 0, true},
		{"missing", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			data[FieldRating] = tt.rating
			rec, err := Normalize(Document{ID: "r1", Data: data})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrMalformedDocument))
				assert.True(t, apperrors.IsNormalization(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Rating)
		})
	}
}

func TestNormalize_CreatedAt(t *testing.T) {
	tests := []struct {
		name        string
		value       interface{}
		remove      bool
		wantPending bool
		wantErr     bool
	}{
		{name: "absent", remove: true, wantPending: true},
		{name: "nil", value: nil, wantPending: true},
		{name: "server timestamp sentinel", value: ServerTimestamp, wantPending: true},
		{name: "rfc3339 string", value: "2025-03-01T10:00:00Z"},
		{name: "seconds object", value: map[string]interface{}{"seconds": float64(1740823200), "nanoseconds": float64(0)}},
		{name: "garbage string", value: "yesterday", wantErr: true},
		{name: "number", value: 12345, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			if tt.remove {
				delete(data, FieldCreatedAt)
			} else {
				data[FieldCreatedAt] = tt.value
			}
			rec, err := Normalize(Document{ID: "r1", Data: data})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending, rec.Pending())
		})
	}
}

func TestNormalize_FieldTypes(t *testing.T) {
	t.Run("missing owner", func(t *testing.T) {
		data := validData()
		delete(data, FieldUserID)
		_, err := Normalize(Document{ID: "r1", Data: data})
		assert.Error(t, err)
	})
	t.Run("empty owner", func(t *testing.T) {
		data := validData()
		data[FieldUserID] = ""
		_, err := Normalize(Document{ID: "r1", Data: data})
		assert.Error(t, err)
	})
	t.Run("non-string comment", func(t *testing.T) {
		data := validData()
		data[FieldComment] = 42
		_, err := Normalize(Document{ID: "r1", Data: data})
		assert.Error(t, err)
	})
	t.Run("image url carried", func(t *testing.T) {
		data := validData()
		data[FieldImageURL] = "https://example.com/a.png"
		rec, err := Normalize(Document{ID: "r1", Data: data})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a.png", rec.ImageURL)
	})
	t.Run("empty id", func(t *testing.T) {
		_, err := Normalize(Document{Data: validData()})
		assert.Error(t, err)
	})
}

func TestNormalize_ErrorDetails(t *testing.T) {
	data := validData()
	data[FieldRating] = 9
	_, err := Normalize(Document{ID: "r9", Data: data})

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "r9", appErr.Details["document_id"])
	assert.Equal(t, FieldRating, appErr.Details["field"])
	assert.Contains(t, appErr.Error(), "r9")
}

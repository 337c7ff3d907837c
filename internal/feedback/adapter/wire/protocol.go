// Package wire holds the JSON messages exchanged between the remote client
// and the dev store. Errors travel as serialized AppErrors so codes survive
// the round trip.
package wire

import (
	"encoding/json"
	"fmt"
	"sort"

	"feedback-sync/internal/feedback/domain/model"
	apperrors "feedback-sync/internal/shared/errors"
)

// Listen frame types.
const (
	FrameListening = "listening"
	FrameBatch     = "batch"
	FrameError     = "error"
)

// WriteRequest is the body of POST /v1/collections/:collection/documents.
// Fields listed in ServerTimestamps are sent as null and resolved by the store.
type WriteRequest struct {
	Data             map[string]interface{} `json:"data"`
	ServerTimestamps []string               `json:"serverTimestamps,omitempty"`
}

// WriteResponse carries the store assigned id.
type WriteResponse struct {
	ID string `json:"id"`
}

// Credentials is the body of the sign-in and sign-up calls.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Change is one delta on the listen channel.
type Change struct {
	Type             model.ChangeType       `json:"type"`
	ID               string                 `json:"id"`
	Data             map[string]interface{} `json:"data,omitempty"`
	ServerTimestamps []string               `json:"serverTimestamps,omitempty"`
}

// Frame is a server to client message on the listen channel.
type Frame struct {
	Type    string              `json:"type"`
	Changes []Change            `json:"changes,omitempty"`
	Error   *apperrors.AppError `json:"error,omitempty"`
}

// EncodeData replaces server timestamp sentinels with null and reports
// which fields held them.
func EncodeData(data map[string]interface{}) (map[string]interface{}, []string) {
	fields := model.ServerTimestampFields(data)
	if len(fields) == 0 {
		return data, nil
	}
	out := model.CloneData(data)
	for _, f := range fields {
		out[f] = nil
	}
	sort.Strings(fields)
	return out, fields
}

// DecodeData puts the sentinels back into data.
func DecodeData(data map[string]interface{}, serverTimestamps []string) map[string]interface{} {
	if len(serverTimestamps) == 0 {
		return data
	}
	if data == nil {
		data = make(map[string]interface{}, len(serverTimestamps))
	}
	for _, f := range serverTimestamps {
		data[f] = model.ServerTimestamp
	}
	return data
}

// EncodeBatch converts a delta batch to a batch frame.
func EncodeBatch(b model.DeltaBatch) Frame {
	f := Frame{Type: FrameBatch, Changes: make([]Change, 0, len(b.Changes))}
	for _, c := range b.Changes {
		wc := Change{Type: c.Type, ID: c.Document.ID}
		if c.Type != model.ChangeRemoved {
			wc.Data, wc.ServerTimestamps = EncodeData(c.Document.Data)
		}
		f.Changes = append(f.Changes, wc)
	}
	return f
}

// DecodeBatch converts a batch frame back to a delta batch.
func DecodeBatch(f Frame) model.DeltaBatch {
	b := model.DeltaBatch{Changes: make([]model.Change, 0, len(f.Changes))}
	for _, c := range f.Changes {
		b.Changes = append(b.Changes, model.Change{
			Type:     c.Type,
			Document: model.Document{ID: c.ID, Data: DecodeData(c.Data, c.ServerTimestamps)},
		})
	}
	return b
}

// ErrorFrame wraps err for the listen channel.
func ErrorFrame(err error) Frame {
	return Frame{Type: FrameError, Error: apperrors.WrapError(err, "listen failed")}
}

// DecodeError turns an error response body into an AppError carrying status.
// Bodies that are not AppErrors become transport errors.
func DecodeError(status int, body []byte) *apperrors.AppError {
	var appErr apperrors.AppError
	if err := json.Unmarshal(body, &appErr); err != nil || appErr.Type == "" {
		return apperrors.NewTransportError(fmt.Sprintf("unexpected response status %d", status)).
			WithDetail("body", string(body))
	}
	appErr.HTTPCode = status
	if appErr.Details == nil {
		appErr.Details = make(map[string]interface{})
	}
	return &appErr
}

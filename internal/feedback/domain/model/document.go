package model

// Document is a raw document as pushed by the remote store.
type Document struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

// FieldValue represents special server-side values like ServerTimestamp.
type FieldValue string

const (
	// ServerTimestamp is a sentinel value the store replaces with its own clock on write.
	ServerTimestamp FieldValue = "ServerTimestamp"
)

// Collections
const (
	CollectionFeedbacks = "feedbacks"
	CollectionUsers     = "users"
)

// Raw field names of a feedback document.
const (
	FieldUserID    = "userId"
	FieldName      = "name"
	FieldRating    = "rating"
	FieldComment   = "comment"
	FieldCreatedAt = "createdAt"
	FieldImageURL  = "imageUrl"
)

// CloneData returns a shallow copy of a document payload.
func CloneData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// ServerTimestampFields lists the fields of data holding the ServerTimestamp sentinel.
func ServerTimestampFields(data map[string]interface{}) []string {
	var fields []string
	for k, v := range data {
		if IsServerTimestamp(v) {
			fields = append(fields, k)
		}
	}
	return fields
}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v interface{}) bool {
	fv, ok := v.(FieldValue)
	return ok && fv == ServerTimestamp
}

package model

// ChangeType defines the kind of document change in a delta batch.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one document change. For removals only Document.ID is meaningful.
type Change struct {
	Type     ChangeType `json:"type"`
	Document Document   `json:"document"`
}

// DeltaBatch is the unit the store pushes: the changes since the previous
// batch of the same subscription, in order.
type DeltaBatch struct {
	Changes []Change `json:"changes"`
}

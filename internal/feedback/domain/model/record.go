package model

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// FeedbackRecord is a normalized feedback entry.
type FeedbackRecord struct {
	ID          string
	OwnerID     string
	DisplayName string
	Rating      int
	Comment     string
	ImageURL    string
	// CreatedAt is nil while the server timestamp is pending.
	CreatedAt *time.Time
}

// Pending reports whether the server has not yet assigned CreatedAt.
func (r FeedbackRecord) Pending() bool {
	return r.CreatedAt == nil
}

func (r FeedbackRecord) clone() FeedbackRecord {
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		r.CreatedAt = &t
	}
	return r
}

// CompareRecords orders records for display: pending first, then newest
// CreatedAt first, then ID descending.
func CompareRecords(a, b FeedbackRecord) int {
	switch {
	case a.Pending() && !b.Pending():
		return -1
	case !a.Pending() && b.Pending():
		return 1
	case !a.Pending() && !b.Pending():
		if c := b.CreatedAt.Compare(*a.CreatedAt); c != 0 {
			return c
		}
	}
	return strings.Compare(b.ID, a.ID)
}

// Snapshot is an immutable, ordered view of one owner's records.
type Snapshot struct {
	owner       string
	version     uint64
	publishedAt time.Time
	records     []FeedbackRecord
}

// EmptySnapshot returns a snapshot without records.
func EmptySnapshot(owner string, version uint64) Snapshot {
	return Snapshot{owner: owner, version: version, publishedAt: time.Now()}
}

// BuildSnapshot derives a sorted snapshot from a working set keyed by ID.
func BuildSnapshot(owner string, version uint64, working map[string]FeedbackRecord) Snapshot {
	records := lo.Map(lo.Values(working), func(r FeedbackRecord, _ int) FeedbackRecord {
		return r.clone()
	})
	slices.SortFunc(records, CompareRecords)
	return Snapshot{
		owner:       owner,
		version:     version,
		publishedAt: time.Now(),
		records:     records,
	}
}

// Owner is the identity the snapshot was built for.
func (s Snapshot) Owner() string { return s.owner }

// Version increases with every snapshot a live query publishes.
func (s Snapshot) Version() uint64 { return s.version }

// PublishedAt is when the snapshot was derived.
func (s Snapshot) PublishedAt() time.Time { return s.publishedAt }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// At returns a copy of the i-th record.
func (s Snapshot) At(i int) FeedbackRecord { return s.records[i].clone() }

// Records returns a copy of the ordered records.
func (s Snapshot) Records() []FeedbackRecord {
	return lo.Map(s.records, func(r FeedbackRecord, _ int) FeedbackRecord { return r.clone() })
}

// IDs returns the record IDs in snapshot order.
func (s Snapshot) IDs() []string {
	return lo.Map(s.records, func(r FeedbackRecord, _ int) string { return r.ID })
}

// Find returns the record with id, if present.
func (s Snapshot) Find(id string) (FeedbackRecord, bool) {
	r, ok := lo.Find(s.records, func(r FeedbackRecord) bool { return r.ID == id })
	if !ok {
		return FeedbackRecord{}, false
	}
	return r.clone(), true
}

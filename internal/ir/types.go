package ir

import (
	"strings"

	"github.com/google/uuid"
)

// ObjectID is the opaque identity of a record.
//
// Temporary identities are issued by a staging context on insert and are
// unique within that context only. Permanent identities are issued by the
// durable store and never change once assigned.
type ObjectID string

// temporaryPrefix marks identities that have not been made permanent yet.
const temporaryPrefix = "t-"

// NewTemporaryID returns a fresh provisional identity.
func NewTemporaryID() ObjectID {
	return ObjectID(temporaryPrefix + uuid.NewString())
}

// IsTemporary reports whether the identity is still provisional.
func (id ObjectID) IsTemporary() bool {
	return strings.HasPrefix(string(id), temporaryPrefix)
}

// String implements fmt.Stringer.
func (id ObjectID) String() string {
	return string(id)
}

// Row is an immutable snapshot of one record as a context or the store sees
// it. Rows are what flows between a staging context and its parent.
type Row struct {
	ID     ObjectID `json:"id"`
	Kind   string   `json:"kind"`
	Fields Object   `json:"fields"`
	Seq    int64    `json:"seq"` // Logical insertion order
}

// Clone returns a copy of the row with its own fields map.
func (r Row) Clone() Row {
	r.Fields = r.Fields.Clone()
	return r
}

// ChangeSet is what a staging context hands to its parent on commit.
//
// INVARIANT: every Inserted row carries a permanent identity by the time a
// parent receives the change set.
type ChangeSet struct {
	Inserted []Row      `json:"inserted"`
	Updated  []Row      `json:"updated"`
	Deleted  []ObjectID `json:"deleted"`
}

// IsEmpty reports whether the change set carries no changes.
func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Inserted) == 0 && len(cs.Updated) == 0 && len(cs.Deleted) == 0
}

// Notification returns the identities touched by the change set.
func (cs ChangeSet) Notification() ChangeNotification {
	n := ChangeNotification{
		Inserted: make([]ObjectID, 0, len(cs.Inserted)),
		Updated:  make([]ObjectID, 0, len(cs.Updated)),
		Deleted:  append([]ObjectID{}, cs.Deleted...),
	}
	for _, r := range cs.Inserted {
		n.Inserted = append(n.Inserted, r.ID)
	}
	for _, r := range cs.Updated {
		n.Updated = append(n.Updated, r.ID)
	}
	return n
}

// ChangeNotification carries the identities affected by a commit or a batch
// delete. It is delivered to live queries after the change reaches the store.
type ChangeNotification struct {
	Inserted []ObjectID `json:"inserted"`
	Updated  []ObjectID `json:"updated"`
	Deleted  []ObjectID `json:"deleted"`
}

// IsEmpty reports whether the notification names no identities.
func (n ChangeNotification) IsEmpty() bool {
	return len(n.Inserted) == 0 && len(n.Updated) == 0 && len(n.Deleted) == 0
}

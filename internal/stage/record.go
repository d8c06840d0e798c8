package stage

import (
	"fmt"
	"sync"

	"github.com/roach88/strata/internal/ir"
)

type recordState int

const (
	stateRegistered recordState = iota
	stateInserted
	// stateDeleted records are deleted here with the commit pending.
	stateDeleted
	// stateDetached records were evicted, discarded or forgotten and belong
	// to no working set.
	stateDetached
)

// Record is one record materialized in a staging context.
//
// A *Record is unique per identity within its context: fetching the same
// identity twice returns the same pointer. The identity changes exactly once,
// from temporary to permanent, when the inserting context saves.
//
// Thread-safety: all methods are safe for concurrent use.
type Record struct {
	owner *Context
	kind  string

	mu       sync.Mutex
	id       ir.ObjectID
	seq      int64
	fields   ir.Object
	baseline string // fingerprint of the fields as the parent last held them
	dirty    bool
	state    recordState
}

func newRecord(owner *Context, row ir.Row, state recordState) *Record {
	r := &Record{
		owner:  owner,
		kind:   row.Kind,
		id:     row.ID,
		seq:    row.Seq,
		fields: row.Fields.Clone(),
		state:  state,
	}
	if state == stateRegistered {
		r.baseline = ir.MustFingerprint(r.fields)
	}
	return r
}

// ID returns the record's current identity.
func (r *Record) ID() ir.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Kind returns the record kind name.
func (r *Record) Kind() string {
	return r.kind
}

// Seq returns the logical insertion order.
func (r *Record) Seq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Context returns the staging context the record belongs to.
func (r *Record) Context() *Context {
	return r.owner
}

// Get returns the value of a field, or nil when the field is absent.
func (r *Record) Get(key string) ir.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fields[key]
}

// Fields returns a copy of all fields.
func (r *Record) Fields() ir.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fields.Clone()
}

// Set assigns a field. Setting ir.Null{} clears it but keeps the key.
func (r *Record) Set(key string, v ir.Value) error {
	return r.Update(ir.Object{key: v})
}

// Update assigns several fields at once.
func (r *Record) Update(changes ir.Object) error {
	if len(changes) == 0 {
		return nil
	}
	for k, v := range changes {
		if v == nil {
			return fmt.Errorf("set %q on %s: nil value, use ir.Null{}", k, r.ID())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateDeleted || r.state == stateDetached {
		return fmt.Errorf("set on %s: %w", r.id, ErrRecordDeleted)
	}
	for k, v := range changes {
		r.fields[k] = v
	}
	r.markLocked()
	return nil
}

// IsDeleted reports whether the record was deleted, evicted, or discarded.
func (r *Record) IsDeleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateDeleted || r.state == stateDetached
}

// IsInserted reports whether the record was created in its context and not
// saved yet.
func (r *Record) IsInserted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateInserted
}

// HasChanges reports whether the record differs from its parent's copy.
func (r *Record) HasChanges() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingLocked()
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	return fmt.Sprintf("%s(%s)", r.kind, r.ID())
}

// Row returns a snapshot of the record.
func (r *Record) Row() ir.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowLocked()
}

func (r *Record) rowLocked() ir.Row {
	return ir.Row{ID: r.id, Kind: r.kind, Fields: r.fields.Clone(), Seq: r.seq}
}

// markLocked recomputes dirtiness after a field change. A registered record
// whose fields return to the fetched values is clean again.
func (r *Record) markLocked() {
	if r.state != stateRegistered {
		return
	}
	r.dirty = ir.MustFingerprint(r.fields) != r.baseline
}

// pendingLocked reports whether the record contributes to a change set as an
// insert or an update.
func (r *Record) pendingLocked() bool {
	return r.state == stateInserted || (r.state == stateRegistered && r.dirty)
}

func (r *Record) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingLocked()
}

// refresh adopts the parent's current values when the record has no local
// changes. Returns false when local values were kept.
func (r *Record) refresh(row ir.Row) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateRegistered || r.dirty {
		return false
	}
	r.fields = row.Fields.Clone()
	r.seq = row.Seq
	r.baseline = ir.MustFingerprint(r.fields)
	return true
}

// absorbUpdate applies values handed up by a child context.
func (r *Record) absorbUpdate(fields ir.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = fields.Clone()
	r.markLocked()
}

// settle records that the parent now holds committed for this record.
// Without a committed row the baseline is left alone. Fields changed after
// the change set was taken keep the record dirty.
func (r *Record) settle(committed ir.Object, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateInserted {
		r.state = stateRegistered
	}
	if ok {
		r.baseline = ir.MustFingerprint(committed)
	}
	r.dirty = ir.MustFingerprint(r.fields) != r.baseline
}

// revert restores parent values after rollback.
func (r *Record) revert(row ir.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = row.Fields.Clone()
	r.seq = row.Seq
	r.baseline = ir.MustFingerprint(r.fields)
	r.dirty = false
	r.state = stateRegistered
}

func (r *Record) rekey(id ir.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

func (r *Record) setState(s recordState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Record) currentState() recordState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

package stage

import "errors"

var (
	// ErrQueueClosed is returned when a task is submitted after Close.
	ErrQueueClosed = errors.New("stage: queue closed")

	// ErrRecordDeleted is returned when mutating a record that was deleted,
	// evicted or discarded by rollback.
	ErrRecordDeleted = errors.New("stage: record deleted")

	// ErrPermanentIDs marks a failure to obtain permanent identities during
	// save. The working set is left untouched.
	ErrPermanentIDs = errors.New("stage: obtain permanent identities")

	// ErrCommit marks a failure of the parent to absorb a change set.
	// The working set is left untouched.
	ErrCommit = errors.New("stage: commit to parent")
)

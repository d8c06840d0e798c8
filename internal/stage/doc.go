// Package stage implements staging contexts: in-memory working sets of
// pending inserts, updates and deletes layered over a parent.
//
// A parent is either the durable store or another staging context. Both
// satisfy Parent, so a context never knows how deep the hierarchy above it
// goes. Roles (Root, Primary, Supplementary) only label a context; the commit
// cascade that treats Root specially lives in package coordinator.
//
// # Working set
//
// Every record a context has handed out lives in its identity map, so
// repeated fetches return the same *Record for an identity. A record is in
// exactly one of these states:
//   - inserted: created here, temporary identity until saved
//   - registered: fetched from the parent; updated once its fields diverge
//     from the values it was fetched with
//   - deleted: removed here, pending commit
//
// # Concurrency
//
// Each context drains its operations through a Queue served by a single
// goroutine. Callers block until their task has run. A task that calls back
// into a context served by the same queue runs inline, so contexts that
// share a queue never deadlock on each other. Calls only ever flow from a
// child to its parent, never the other way, so distinct queues cannot form a
// wait cycle.
//
// Records themselves guard their fields with a mutex: Get and Set are safe
// from any goroutine, and the owning context reads them under that lock.
package stage

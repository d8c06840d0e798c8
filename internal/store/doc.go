// Package store provides the SQLite-backed durable store under the staging
// context hierarchy.
//
// The store keeps every committed record in a single table:
//   - id: permanent object identity (UUIDv7, issued by the store)
//   - kind: record kind name
//   - fields: RFC 8785 canonical JSON of the record's fields
//   - seq: logical insertion order, assigned when the record was inserted
//
// # Contract
//
// The store is the parent of the root staging context and implements the
// same four operations every parent does:
//   - View: rows of a kind matching a predicate, ORDER BY seq ASC, id ASC
//   - Lookup: one row by identity
//   - ObtainPermanentIDs: issue identities for records about to be committed
//   - Absorb: apply a change set atomically in one transaction
//
// BatchDelete is the one write that does not come from the root context: it
// deletes every matching row of a kind in a single transaction and reports
// the deleted identities so a context can evict them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite allows one writer at a time
package store

// Package harness runs conformance scenarios against a coordinator.
//
// A scenario is a YAML script of coordinator operations, each with optional
// expectations. The harness executes it against a fresh store and records a
// trace that golden files pin down.
//
// # Scenario Format
//
//	name: shop
//	description: "What this scenario demonstrates"
//	seed: fixtures/shop.sqlite   # optional
//	steps:
//	  - op: attach
//	    child_of_primary: false
//	  - op: insert
//	    context: primary
//	    kind: Order
//	    fields: {total: 10}
//	    as: o1
//	  - op: save
//	    context: primary
//	  - op: fetch
//	    context: supplementary
//	    kind: Order
//	    where: "total > 5"
//	    sort: ["total:desc"]
//	    expect_count: 1
//	    expect_fields:
//	      - {total: 10}
//
// Operations: attach, detach, insert, set, save, rollback, fetch, adopt,
// delete, delete_all, purge, reopen. See Step for the fields each one uses.
//
// # Expectations
//
//   - expect_count: number of records fetched, deleted or purged
//   - expect_fields: per fetched record, in order, a subset of its fields
//   - expect_error: the error code the step fails with (STORE_COMMIT,
//     FETCH_FAILED, NOT_ATTACHED, RECORD_DELETED, ...)
//
// A step that fails without expect_error fails the scenario; the run goes on
// so the trace shows everything that happened.
//
// # Determinism
//
// Permanent identities come from testutil.SequentialIDs and traces name
// records by alias, so a scenario always produces the same trace. Golden
// files live in testdata/golden/<name>.golden and are compared with goldie.
package harness

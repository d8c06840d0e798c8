// Package query describes what a fetch asks for and evaluates it against rows.
//
// A Request names a record kind, an optional predicate, sort descriptors and
// an optional section key path. Predicates are boolean expressions in the
// github.com/expr-lang/expr language, evaluated with the record's fields as
// variables:
//
//	total > 5 && status == "open"
//	customer.name startsWith "A"
//	"rush" in tags
//
// Fields a record does not have evaluate to nil. Compiled programs are cached
// per Compiler in an LRU keyed by the predicate source.
//
// Ordering is deterministic: explicit sort descriptors first, then seq ASC,
// then id ASC (binary). Rows with equal sort keys therefore always come back in
// insertion order.
package query

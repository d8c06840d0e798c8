// Package coordinator is the facade over the staging context hierarchy.
//
// A Coordinator owns one durable store and three staging contexts:
//
//	store
//	  root                  writes to the store, never presents records
//	    primary             default context for reads and edits
//	      supplementary     optional, when attached to primary
//	    supplementary       optional, when attached to root
//
// Callers pick a context with a Selector. Save cascades a context's working
// set into its parent and, when that parent is root, on into the store
// before returning. A save into primary stops there.
//
// # Error classes
//
// Fatal-class errors (store open, store commit, permanent identities,
// supplementary not attached) are logged, passed to the FatalHandler
// (default: exit the process) and returned. Everything else is returned.
package coordinator

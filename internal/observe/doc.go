// Package observe provides live queries: a fetch request bound to a staging
// context that re-runs whenever a merge notification reaches that context.
//
// A Hub keeps the live queries of every context and fans a
// ChangeNotification out to the ones registered on the affected context.
// Results are grouped into Sections by a key path, so a list view can be
// driven straight from a LiveQuery.
package observe

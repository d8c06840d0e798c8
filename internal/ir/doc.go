// Package ir provides the value and identity types shared by every strata
// package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in record fields - use int64 for numbers
//   - Field names and string values are NFC normalized at the canonical
//     serialization boundary
//   - Ordering uses the logical seq assigned at insertion, never wall-clock time
//   - Object identities are opaque strings; temporary ones carry a "t-" prefix
package ir

package ir

// Version constants for the record encoding and the module.
const (
	// FormatVersion is the version of the canonical field encoding stored on disk.
	FormatVersion = "1"

	// Version is the strata release version.
	Version = "0.1.0"
)

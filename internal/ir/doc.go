// Package ir provides the value layer shared by every relcomp package.
//
// Literals inside comprehension expressions, the rows produced by the
// reference evaluator and the rows read back from SQLite are all IRValues.
// This package imports nothing internal so it stays the foundation layer.
//
// Key design constraints:
//   - NO float types anywhere - integers are int64
//   - Unit is the empty record: it renders as "()" and encodes as {}
//   - Records are compared and encoded by label, never by field position
//   - Canonical JSON (RFC 8785) is the only input to fingerprints
package ir

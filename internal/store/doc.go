// Package store runs compiled comprehensions on SQLite and records
// evaluation results.
//
// The SQLite engine is a second oracle next to the reference evaluator: a
// comprehension in the SQL fragment (see internal/querysql) must produce the
// same multiset of elements on both.
//
// # Result log
//
// Results are append-only and content-addressed:
//   - id is a domain-separated SHA-256 over the comprehension fingerprint,
//     the engine name, and the rows fingerprint
//   - rows are stored as RFC 8785 canonical JSON
//   - ordering uses seq INTEGER (logical clock), never timestamps
//
// All reads include ORDER BY seq ASC, id ASC COLLATE BINARY.
package store

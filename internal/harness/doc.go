// Package harness runs query scripts and checks them against their
// expectations and against each other's semantics.
//
// For every script the harness:
//
//  1. Replays the builder calls and checks the expected error, if any
//  2. Compares the canonical renderings of the built and simplified forms
//  3. Checks that simplification is idempotent
//  4. Evaluates the built and simplified forms with the reference evaluator
//     and requires identical element sequences
//  5. Runs the built form on SQLite when it lies in the SQL fragment and
//     requires the same multiset of elements
//
// Each Run uses a fresh in-memory store unless one is supplied with
// WithStore; a supplied store also receives the evaluation results in its
// result log.
//
// Golden snapshots (RunWithGolden) capture the renderings, rows, and the
// engines that agreed, as canonical JSON under testdata/golden.
package harness

// Package gate is the request path: it validates a file descriptor,
// serves or computes a decision through the cache, and audits each
// computation once.
//
// A computation runs the lookups, fuses their signals and maps the fused
// confidence onto an outcome. When every lookup failed the gate re-reads
// the cache before failing closed, so a decision stored by another
// instance in the meantime still wins.
//
// The scoring weights and thresholds form the active Policy. SetPolicy
// swaps it atomically and purges the cache so no decision made under the
// previous policy is served afterwards.
package gate

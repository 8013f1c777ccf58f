// Package feedback applies classification overrides from analysts.
//
// An override reclassifies the fingerprints for a content hash, drops any
// cached decisions for that hash so the next request is recomputed with
// the new classification, and optionally records the user's action on
// the audited decision that prompted it. Overrides arrive from the CLI
// or from a Kafka topic carrying JSON messages.
package feedback

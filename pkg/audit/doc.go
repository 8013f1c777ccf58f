// Package audit defines decision audit records and the interfaces used to
// persist, query and export them.
//
// One record is written per computed decision. Records for decisions
// served from cache are written only when audit.record_cache_hits is set.
// A record may later be annotated with the user's action (PROCEED or
// CANCEL) and with classification overrides applied through feedback.
//
// Subpackages:
//
//   - recorder: asynchronous Sink with a bounded buffer
//   - storage: in-memory and SQLite Storage backends
//   - query: query validation and defaults
//   - retention: cron-scheduled pruning by age and record count
//   - export: JSON and CSV exporters
package audit

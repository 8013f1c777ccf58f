// Package health provides liveness and readiness probes for filegate serve.
//
// Components register checks as critical or optional. Readiness is
// "unhealthy" (503) when any critical check fails, "degraded" (200) when
// only optional checks fail, and "ready" otherwise. The fingerprint store
// is critical; the redis cache and audit storage are optional since the
// gate fails closed or drops audit records without them.
package health

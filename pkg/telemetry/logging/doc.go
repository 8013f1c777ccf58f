// Package logging builds the process-wide slog logger.
//
// Loggers are plain *slog.Logger values. The handler returned by New
// enriches every record logged with a context (InfoContext and friends)
// with the request ID, org scope and content hash stored by the helpers in
// this package, plus the active OpenTelemetry trace and span IDs.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "decision computed", "outcome", "BLOCK")
package logging

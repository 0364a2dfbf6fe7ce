// Package logging provides structured logging for releasetrain runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// release context attached to every entry, so that the log of a release
// train touching dozens of projects can be filtered per project, step or
// group after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via the With* methods share the underlying writer, so projects
// released concurrently by the group scheduler log into one file.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("release started", "projects", 12)
//
// # Context Propagation
//
//	runLogger := logger.WithRun("3f0c9d1e")
//	projectLogger := runLogger.WithGroup(1).WithProject("spring-cloud-sleuth")
//	projectLogger.WithStep("deploy").Warn("deploy is slow", "elapsed_ms", 90000)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"deploy is slow","run_id":"3f0c9d1e","group":1,"project":"spring-cloud-sleuth","step":"deploy","elapsed_ms":90000}
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output, or
// [NewLoggerWriter] to capture entries in a buffer.
package logging

// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr by default so that script results written to stdout by
// the runner stay machine readable.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Context created", zap.String("context_id", ctxID))
//	logger.Warn("Host call failed", zap.Error(err))
package logging

// Package server exposes the script runner over HTTP.
//
// The router is gin with this middleware stack:
//   - Recovery
//   - RequestID and per-request zap logging
//   - CORS
//   - per-IP rate limiting when enabled
//
// Responses are gzip-compressed for clients that accept it, and /metrics
// serves the Prometheus registry the metrics were registered against.
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg, server.Deps{Pool: pool, Runner: r, Metrics: m, Gatherer: reg})
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package server

// Package middleware provides the HTTP middleware of the script API.
//
//   - CORS: cross-origin access through gin-contrib/cors
//   - RateLimit: per-IP token buckets with idle client eviction
//   - GlobalRateLimit: one token bucket shared by all clients
//   - RequestID: X-Request-ID propagation
//   - Logger: one zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

// Package config provides 12-factor configuration management for vmsync.
//
// Configuration is loaded from environment variables with sensible defaults.
// A TOML or YAML file can be layered on top for the script runner.
//
// Configuration Sections:
//   - VM: Per-context execution timeout and call stack limit
//   - Pool: Number of pooled VM contexts and acquisition timeout
//   - Arena: Default sync mode for wrapped values
//   - Runner: Script concurrency and the host API exposed to scripts
//   - Loader: Retry policy for scripts fetched over HTTP
//   - Server: HTTP listen address, shutdown timeout and request size cap
//   - RateLimit: Per-client request rate for the HTTP server
//   - Logging: Log level and output format
//   - Metrics: Prometheus collection toggle
//
// Example Usage:
//
//	cfg, err := config.LoadFile("vmsync.toml")
//	if err != nil {
//		cfg = config.Default()
//	}
//
// Environment Variables:
//   - VM_TIMEOUT, VM_MAX_CALL_STACK
//   - POOL_SIZE, POOL_ACQUIRE_TIMEOUT
//   - ARENA_SYNC_MODE
//   - ARENA_MAX_ARRAY_LENGTH
//   - RUNNER_CONCURRENCY, RUNNER_CONSOLE, RUNNER_ENV
//   - LOADER_RETRY_MAX, LOADER_RETRY_WAIT_MIN, LOADER_RETRY_WAIT_MAX
//   - SERVER_HOST, SERVER_PORT, SERVER_SHUTDOWN_TIMEOUT, SERVER_MAX_SCRIPT_BYTES
//   - RATE_LIMIT_ENABLED, RATE_LIMIT_RPS, RATE_LIMIT_BURST
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ENABLED
package config

// Package runner executes scripts against the host through an arena.
//
// Each script runs in a context taken from a vm.Pool, with a fresh arena
// exposing a small host API:
//
//	console.log/warn/error/info and print   captured into Result.Console
//	host.now()                              the current time as a Date
//	host.env(name)                          allow-listed environment variables
//
// Results are converted with Plain so they can be encoded as JSON.
//
// Usage:
//
//	pool, _ := vm.NewPool(vm.DefaultConfig(), vm.PoolConfig{Size: 4})
//	r := runner.New(pool, runner.DefaultConfig())
//	results, err := r.RunAll(ctx, scripts)
package runner

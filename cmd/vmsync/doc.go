// Command vmsync runs scripts in pooled goja contexts bridged to the host
// through an arena, and prints the results as JSON.
//
// Each script sees a small host API: console.log/warn/error/info, print,
// host.now() and host.env(name) for allow-listed variables.
//
// Usage:
//
//	# Run every script under scripts/, four at a time
//	vmsync -scripts 'scripts/**/*.js' -concurrency 4
//
//	# Layer a config file over the environment
//	vmsync -config vmsync.toml -scripts ./scripts,https://example.com/check.js
//
//	# Serve POST /run and POST /run/batch over HTTP
//	vmsync -serve -config vmsync.yaml
//
// Exit status is 0 when every script succeeded, 1 when some script failed
// and 2 on setup errors.
package main

// Package http implements the handlers of the script API.
//
// Endpoints:
//   - GET  /health     liveness and pool usage
//   - GET  /stats      running metric totals
//   - POST /run        execute {"name", "source"}
//   - POST /run/batch  execute {"scripts": [...]} concurrently
package http

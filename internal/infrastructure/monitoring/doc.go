/*
Package monitoring provides Prometheus metrics for the host/VM bridge.

# Overview

Metrics are registered against an injected prometheus.Registerer so that
several collectors (one per test, one per runner) can coexist. Every
recording method is safe to call on a nil *Metrics, which lets components
treat metrics as optional.

# Metrics

  - vmsync_handles_created_total / vmsync_handles_disposed_total
  - vmsync_identity_map_entries{arena}
  - vmsync_functions_projected_total
  - vmsync_host_calls_total{function,status} and duration histogram
  - vmsync_wraps_total{side}
  - vmsync_evals_total{status} and duration histogram

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	ctx, err := vm.New(vm.DefaultConfig(), vm.WithMetrics(metrics))

Expose metrics via the standard Prometheus handler if the embedding serves HTTP:

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
*/
package monitoring

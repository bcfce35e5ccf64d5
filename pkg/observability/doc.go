/*
Package observability exposes engine activity as Prometheus metrics.

Metrics.Hooks returns domain.LifecycleHooks that count runs, node outcomes and cache
lookups and time node executions. Register the collectors with any prometheus.Registerer
and serve them with promhttp.
*/
package observability

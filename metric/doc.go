// Package metric provides Prometheus metrics for the connection manager.
//
// A MetricsRegistry owns a private prometheus.Registry preloaded with the
// manager's core metrics (connection state, reconnects, received, dispatched,
// published and dropped messages, callback failures, active subscriptions,
// dispatch latency) and the Go runtime collectors. Pass it to the manager
// with pubsub.WithMetrics and serve it with Server:
//
//	registry := metric.NewMetricsRegistry()
//	m, _ := pubsub.NewManager(cfg, dialer, pubsub.WithMetrics(registry))
//
//	srv := metric.NewServer(9090, "/metrics", registry, m.Health)
//	go srv.Start()
//	defer srv.Stop(ctx)
//
// Metrics carry no per-topic or per-pattern labels. Topics are unbounded and
// would explode series cardinality.
package metric

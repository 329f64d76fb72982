// Package busmux is a single-connection publish/subscribe multiplexer for
// topic based message buses.
//
// A process keeps exactly one broker connection. Any number of logical
// subscribers register topic patterns against it, every inbound message is
// routed to each matching subscriber, and all patterns are subscribed again
// after every reconnect. A subscriber whose callback panics never affects
// the others.
//
// # Layout
//
//	topic        wildcard matching (+ and #) and NATS subject translation
//	pubsub       connection manager, subscription registry and handles
//	transport    the broker-facing interfaces the manager drives
//	mqttclient   MQTT transport built on Eclipse Paho
//	natsclient   NATS transport built on nats.go
//	metric       Prometheus metrics and the /metrics and /health server
//	health       connection health reporting
//	config       layered configuration loading
//	errors       classified errors (transient, invalid, fatal)
//	testutil     in-memory transport for tests
//	cmd/busmux   command line watcher and publisher
//
// # Scope
//
// busmux deliberately does not persist messages, acknowledge deliveries,
// replay retained messages or enforce authorization. Everything is QoS 0:
// a message published while disconnected is dropped, not queued.
package busmux

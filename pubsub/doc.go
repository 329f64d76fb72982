// Package pubsub multiplexes many logical subscriptions over one broker
// connection.
//
// A Manager owns the single connection of a process. Consumers register
// topic patterns with Subscribe and send messages with Publish; every
// inbound message is routed to each registered pattern that matches its
// topic (see package topic for the wildcard rules).
//
// # Lifecycle
//
// The connection is dialed lazily on first use and then left to the
// transport to keep alive. The manager follows the transport's events:
//
//	Disconnected → Connecting → Connected ⇄ Reconnecting
//	                               ↓           ↓
//	                             Errored ← ← ← ┘
//
// Errored is not terminal; the next connect event returns to Connected. On
// every connect all registered patterns are subscribed again in registration
// order, so subscribers never notice a reconnect.
//
// # Delivery policy
//
// Subscribing while disconnected is deferred until the next connect.
// Publishing while disconnected drops the message: nothing is queued and no
// error is returned. Neither Subscribe nor Publish ever fails; connection
// problems surface only through Observer notifications, logs and metrics.
//
// Registering a pattern that is already registered replaces its handler.
// A panicking handler is recovered, reported as KindCallbackFailed and does
// not prevent other matching handlers from running.
//
// # Concurrency
//
// All registry mutation, state transitions and handler calls happen on one
// dispatch loop goroutine fed by an unbounded queue. Handlers can therefore
// call Subscribe, Publish and Unsubscribe themselves without deadlocking.
//
// # Usage
//
//	dialer, err := mqttclient.NewDialer(mqttclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	m, err := pubsub.NewManager(cfg, dialer,
//	    pubsub.WithLogger(logger),
//	    pubsub.WithObserver(func(n pubsub.Notification) {
//	        logger.Log(ctx, n.Level(), n.Message, "state", n.State)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer m.Close(ctx)
//
//	sub := m.Subscribe("sensors/+/temperature", func(topic, message string) {
//	    fmt.Println(topic, message)
//	})
//	defer sub.Close()
//
//	m.Publish("sensors/kitchen/temperature", map[string]any{"celsius": 21.5})
//
// Long-lived processes typically construct one Manager at startup and pass
// it down with NewContext and FromContext.
package pubsub

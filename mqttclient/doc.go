// Package mqttclient implements transport.Dialer on top of the Eclipse Paho
// MQTT client.
//
// Paho owns the wire protocol, TLS and WebSocket framing and automatic
// reconnect once a session was established. Until the first connect
// succeeds the conn issues Connect itself on a pkg/retry schedule starting at
// ReconnectWait and capped at MaxReconnectInterval, so every failed attempt,
// a refused login included, surfaces as EventError. Paho callbacks are mapped
// onto transport events:
//
//	OnConnect            → EventConnect
//	OnReconnecting       → EventReconnect
//	OnConnectionLost     → EventError
//	default msg handler  → EventMessage
//
// Sessions are clean; the connection manager restores subscriptions after
// every connect. All subscribes and publishes use QoS 0 and are never
// retained. Failed subscribe, unsubscribe and publish tokens are only
// logged.
//
// Supported protocols are tcp, mqtt, ssl, tls, mqtts, ws and wss. The client
// ID defaults to "busmux-" followed by eight random hex characters.
package mqttclient

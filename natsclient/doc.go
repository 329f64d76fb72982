// Package natsclient implements transport.Dialer on top of the NATS Go client.
//
// Topics and patterns use the MQTT form everywhere above the transport. The
// connection translates them to NATS subjects on subscribe and publish and
// translates inbound subjects back before delivery:
//
//	sensors/+/temp   →  sensors.*.temp
//	sensors/#        →  sensors.>
//
// NATS callbacks are mapped onto transport events:
//
//	ConnectHandler        → EventConnect
//	ReconnectHandler      → EventConnect
//	DisconnectErrHandler  → EventError (when an error is reported), EventReconnect
//	ErrorHandler          → logged only
//
// The initial connect is retried in the background, so Dial only fails on
// invalid configuration. The NATS client restores its own subscriptions after
// a reconnect; subscribing a pattern that is already active is a no-op.
//
// # Usage
//
//	dialer, err := natsclient.NewDialer(
//	    natsclient.WithReconnectWait(time.Second),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	manager, err := pubsub.NewManager(transport.Config{
//	    Transport: transport.KindNATS,
//	    Host:      "localhost",
//	    Port:      4222,
//	}, dialer)
//
// # Testing
//
// NewTestClient starts a NATS server in a container through testcontainers
// and returns a transport.Config pointing at it:
//
//	tc := natsclient.NewTestClient(t)
//	manager, err := pubsub.NewManager(tc.Config(), dialer)
package natsclient

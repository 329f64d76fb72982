// Package testutil provides an in-memory transport for testing busmux
// consumers without a broker.
//
// # Overview
//
// MockDialer implements transport.Dialer. Each Dial returns a MockConn that
// records every Subscribe, Unsubscribe and Publish call and lets the test
// drive the transport lifecycle by emitting events:
//
//	dialer := testutil.NewMockDialer()
//	m, _ := pubsub.NewManager(transport.Config{}, dialer)
//
//	sub := m.Subscribe("devices/+/status", handler)
//	defer sub.Close()
//
//	conn := dialer.WaitForConn(t, time.Second)
//	conn.EmitConnect()
//	conn.EmitMessage("devices/d1/status", []byte("online"))
//
// Events emitted through MockConn go through the same Handler the manager
// passed to Dial, so ordering relative to Subscribe and Publish calls is
// exactly what a real transport would produce.
//
// All types are safe for concurrent use.
package testutil

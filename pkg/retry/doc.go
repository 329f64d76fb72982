// Package retry provides exponential backoff schedules for reconnecting
// transports.
//
// A Backoff grows the delay by Multiplier per attempt starting at
// InitialDelay and never exceeds MaxDelay (before jitter):
//
//	b := retry.Backoff{InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}
//	b.Delay(1) // 1s
//	b.Delay(3) // 4s
//	b.Delay(9) // 1m
//
// Func adapts the schedule to callback style options such as
// nats.CustomReconnectDelay.
//
// Jitter adds up to 25% on top of the computed delay; disable it when the
// exact schedule matters, for example in tests.
package retry

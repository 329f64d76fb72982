// Package errors provides the error classification used across busmux.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, the transport will
// recover on its own), Invalid (bad pattern, topic or configuration, retrying
// does not help) and Fatal (the component cannot continue).
//
// busmux never returns transport errors from Subscribe or Publish. They are
// classified here and surfaced asynchronously to observers, so the class is
// what an observer uses to decide between a warning and a hard failure.
//
// # Usage
//
// Wrap third-party errors with component context:
//
//	if err := conn.Subscribe(pattern); err != nil {
//	    return errors.WrapTransient(err, "mqttclient", "Subscribe", "send subscribe")
//	}
//
// The message always follows "component.method: action failed: cause", and
// the wrapped error stays reachable through errors.Is and errors.As:
//
//	if errors.IsInvalid(err) {
//	    // reject without retry
//	}
package errors

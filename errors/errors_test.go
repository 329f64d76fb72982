package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid pattern", ErrInvalidPattern, false},
		{"network error in message", fmt.Errorf("network unreachable"), true},
		{"eof in message", fmt.Errorf("read: EOF"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidPattern))
	assert.True(t, IsInvalid(ErrInvalidTopic))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrInvalidConfig)))
	assert.True(t, IsInvalid(WrapInvalid(fmt.Errorf("bad port"), "config", "Validate", "check port")))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrClosed))
	assert.True(t, IsFatal(WrapFatal(fmt.Errorf("boom"), "Manager", "run", "dispatch")))
	assert.False(t, IsFatal(ErrInvalidPattern))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidTopic))
	assert.Equal(t, ErrorFatal, Classify(ErrClosed))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "c", "m", "a"))
	assert.Nil(t, WrapTransient(nil, "c", "m", "a"))
	assert.Nil(t, WrapInvalid(nil, "c", "m", "a"))
	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))

	base := errors.New("refused")
	err := Wrap(base, "mqttclient", "Dial", "connect")
	assert.Equal(t, "mqttclient.Dial: connect failed: refused", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapTransient_PreservesChain(t *testing.T) {
	err := WrapTransient(ErrConnectionLost, "natsclient", "handleDisconnect", "keep connection")

	var ce *ClassifiedError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "natsclient", ce.Component)
	assert.Equal(t, "handleDisconnect", ce.Operation)
	assert.True(t, errors.Is(err, ErrConnectionLost))
	assert.Contains(t, err.Error(), "keep connection failed")
}

func TestClassifiedError_ErrorFallsBackToCause(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorInvalid, Err: errors.New("cause")}
	assert.Equal(t, "cause", ce.Error())
}

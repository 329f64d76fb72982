package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busmux/errors"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"string verbatim", "hello", "hello"},
		{"string not quoted", `{"already":"json"}`, `{"already":"json"}`},
		{"bytes verbatim", []byte("raw"), "raw"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"float", 21.5, "21.5"},
		{"nil", nil, "null"},
		{"map", map[string]any{"a": 1}, `{"a":1}`},
		{"struct", struct {
			Name string `json:"name"`
		}{"x"}, `{"name":"x"}`},
		{"raw message", json.RawMessage(`{"b":2}`), `{"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := encodePayload(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestEncodePayload_CopiesBytes(t *testing.T) {
	in := []byte("abc")
	data, err := encodePayload(in)
	require.NoError(t, err)

	in[0] = 'z'
	assert.Equal(t, "abc", string(data))
}

func TestEncodePayload_Unencodable(t *testing.T) {
	_, err := encodePayload(make(chan int))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidPayload)
}

func TestDecodePayload(t *testing.T) {
	assert.Equal(t, "hello", decodePayload([]byte("hello")))
	assert.Equal(t, "", decodePayload(nil))
	assert.Equal(t, "a\uFFFDb", decodePayload([]byte{'a', 0xff, 'b'}))
}

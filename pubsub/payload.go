package pubsub

import (
	"encoding/json"
	"strings"

	"github.com/c360/busmux/errors"
)

// encodePayload converts a publish payload to wire bytes. Strings and byte
// slices are sent verbatim, every other value is JSON encoded.
func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		data := make([]byte, len(v))
		copy(data, v)
		return data, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.WrapInvalid(errors.ErrInvalidPayload, "Manager", "Publish", "encode payload: "+err.Error())
		}
		return data, nil
	}
}

// decodePayload converts inbound bytes to text, replacing invalid UTF-8
// sequences with U+FFFD
func decodePayload(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "\uFFFD")
}

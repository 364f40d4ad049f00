package paging

import (
	"bytes"
	"encoding/json"

	"github.com/friendsofgo/errors"
)

// JSONCodec stores records as JSON.
//
// Decoding ignores fields the record type does not know, and the payloads
// "", "{}" and "null" decode to ErrPlaceholder.
type JSONCodec[T any] struct{}

// Encode implements Codec.
func (JSONCodec[T]) Encode(item T) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", errors.Wrap(err, "encode record")
	}
	return string(data), nil
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(payload string) (T, error) {
	var item T

	trimmed := bytes.TrimSpace([]byte(payload))
	switch string(trimmed) {
	case "", "{}", "null":
		return item, ErrPlaceholder
	}

	if err := json.Unmarshal(trimmed, &item); err != nil {
		return item, errors.Wrap(err, "decode record")
	}
	return item, nil
}

package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/morezero/action-dispatcher/pkg/result"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// EncodeResult serializes a Result for a reply message. A value that cannot
// be encoded is replaced by a 500 result with the same tag.
func EncodeResult(res *result.Result) []byte {
	data, err := json.Marshal(res)
	if err != nil {
		fallback := result.Unexpected(fmt.Sprintf("%s: unencodable value: %v", result.MsgUnexpected, err)).ToResult(res.Tag)
		data, _ = json.Marshal(fallback)
	}
	return data
}

// DecodeResult parses a reply message. Numbers in the value are kept as
// json.Number so integer precision survives the round trip.
func DecodeResult(data []byte) (*result.Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var res result.Result
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("%s - failed to decode result: %w", codecLogPrefix, err)
	}
	if res.Code == 0 {
		return nil, fmt.Errorf("%s - reply carries no result code", codecLogPrefix)
	}
	return &res, nil
}

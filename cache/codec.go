package cache

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values stored in a cache.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MsgPack is the default codec. Interface values decode loosely: every
// integer decodes as int64 or uint64 and every float as float64.
var MsgPack Codec = msgpackCodec{}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

// EncodeValues encodes the column values of one row.
func EncodeValues(c Codec, values map[string]any) ([]byte, error) {
	data, err := c.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("cache: encode values: %w", err)
	}
	return data, nil
}

// DecodeValues decodes column values encoded by EncodeValues.
func DecodeValues(c Codec, data []byte) (map[string]any, error) {
	var values map[string]any
	if err := c.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("cache: decode values: %w", err)
	}
	return values, nil
}

package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Values are stored as snappy-compressed JSON. Records of the registration
// app are small text documents; compression keeps the on-device file small.

func encodeValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// decodeValue copies out of the bbolt page, so the result stays valid after
// the transaction ends.
func decodeValue(raw []byte, v any) error {
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return fmt.Errorf("failed to decompress value: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// seqKey encodes a sequence number so that byte order equals numeric order.
func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func keySeq(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

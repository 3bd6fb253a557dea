package history

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Records carry raw PNG bytes, so Redis values are zstd-compressed JSON.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func encodeRecord(rec Record) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return rec, fmt.Errorf("decompress record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

package bus

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// envelope is the on-wire payload shape: {n: name, d: compact-form}.
type envelope struct {
	N string          `json:"n"`
	D json.RawMessage `json:"d"`
}

// encodePayload builds {n, d}, marshals to JSON, then zlib-compresses it.
// d is already the compact-form JSON produced by the market entity's
// MarshalCompact method.
func encodePayload(name string, compactData []byte) ([]byte, error) {
	env := envelope{N: name, D: compactData}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePayload reverses encodePayload: decompress then parse {n, d}.
func decodePayload(data []byte) (name string, compactData []byte, err error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("decompress payload: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("read decompressed payload: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env.N, env.D, nil
}

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// marshalJSON encodes v as compact JSON TEXT with HTML escaping disabled.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline
	return strings.TrimSpace(buf.String()), nil
}

// marshalRecipients converts contact ids to a JSON array for storage.
func marshalRecipients(ids []int) (string, error) {
	if ids == nil {
		ids = []int{}
	}
	data, err := marshalJSON(ids)
	if err != nil {
		return "", fmt.Errorf("marshal recipients: %w", err)
	}
	return data, nil
}

// unmarshalRecipients parses a stored recipients array. Empty input yields nil.
func unmarshalRecipients(data string) ([]int, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	return ids, nil
}

// marshalSources converts run source names to a JSON array for storage.
func marshalSources(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := marshalJSON(names)
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}
	return data, nil
}

func unmarshalSources(data string) ([]string, error) {
	names := []string{}
	if data == "" {
		return names, nil
	}
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	return names, nil
}

// compressSnapshot zstd-compresses a canonical book snapshot.
func compressSnapshot(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressSnapshot reverses compressSnapshot.
func decompressSnapshot(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	return out, nil
}

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalHeaders converts the header snapshot to JSON TEXT for storage.
// HTML escaping is disabled so stored values read back byte-for-byte.
func marshalHeaders(h map[string]string) (string, error) {
	if h == nil {
		h = map[string]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(h); err != nil {
		return "", fmt.Errorf("marshal headers: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalHeaders parses JSON TEXT into a header snapshot.
func unmarshalHeaders(data string) (map[string]string, error) {
	h := map[string]string{}
	if data == "" || data == "{}" {
		return h, nil
	}
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	return h, nil
}

package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes v with object keys sorted, compact separators,
// UTF-8 and no trailing newline. The digest of a pack is computed over this
// form so that formatting of the source file never changes the hash.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	// Round-trip through an untyped value: encoding/json emits map keys in
	// sorted order, which gives us the canonical key ordering.
	var untyped interface{}
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(untyped); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SHA256Hex returns the lowercase hex SHA-256 of the canonical serialization.
func SHA256Hex(v interface{}) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Package helpers provides small encoding utilities shared across the wallet service.
package helpers

import (
	"encoding/hex"
	"fmt"
)

// BytesToHex encodes b as a lowercase, unprefixed hex string, matching the
// wire convention used for account_id, txo_id, public_key, and key_image.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToBytes decodes a plain (unprefixed) hex string into bytes.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// FixedHexToBytes decodes s and requires the result to be exactly n bytes.
func FixedHexToBytes(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("helpers: decode hex: %w", err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("helpers: wrong length: want %d got %d", n, len(b))
	}
	return b, nil
}

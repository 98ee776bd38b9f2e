package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD so that visually identical passphrases typed on
// different platforms derive identical key material.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// HexEncode returns the lowercase hex form used by the token wire format.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// HexDecode rejects anything but an even-length string of hex digits.
func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

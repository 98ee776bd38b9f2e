package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

var (
	allowedRandomChars = []rune("23456789ABCDEFGHJKLMNPQRSTVWXYZ")
)

// AlphabetChars maps a byte stream onto the unambiguous secret alphabet,
// rejection-sampling to avoid modulo bias. Given a deterministic reader the
// output is deterministic.
func AlphabetChars(r io.Reader, n int) (string, error) {
	// Largest multiple of the alphabet size below 256.
	max := byte((256 / len(allowedRandomChars)) * len(allowedRandomChars))
	var sb strings.Builder
	buf := make([]byte, 1)
	for sb.Len() < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("reading char stream: %w", err)
		}
		if buf[0] >= max {
			continue
		}
		sb.WriteRune(allowedRandomChars[int(buf[0])%len(allowedRandomChars)])
	}
	return sb.String(), nil
}

func RandomChars(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		idx, err := RandomIntn(len(allowedRandomChars))
		if err != nil {
			return "", fmt.Errorf("generating random char index: %w", err)
		}
		sb.WriteRune(allowedRandomChars[idx])
	}
	return sb.String(), nil
}

func RandomIntn(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return int(n.Int64()), nil
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

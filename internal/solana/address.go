package solana

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// signature length bounds in bytes after base58 decoding
const (
	addressLen      = 32
	signatureLen    = 64
	minSignatureStr = 64
	maxSignatureStr = 90
)

// ValidateAddress checks that s is a well-formed Solana address:
// base58 text decoding to exactly 32 bytes.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != addressLen {
		return fmt.Errorf("address decodes to %d bytes, want %d", len(raw), addressLen)
	}
	return nil
}

// ValidateSignature checks that s is a well-formed transaction signature:
// base58 text decoding to exactly 64 bytes.
func ValidateSignature(s string) error {
	if len(s) < minSignatureStr || len(s) > maxSignatureStr {
		return fmt.Errorf("signature length %d out of range", len(s))
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != signatureLen {
		return fmt.Errorf("signature decodes to %d bytes, want %d", len(raw), signatureLen)
	}
	return nil
}

package solana

import (
	"testing"

	"github.com/mr-tron/base58"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"7ziZFc6zh2U1jxpYxzrA2HL77UZo8TLt9X65pNtW6EPp",
		"C5hkCo3nE6F9K6z67tzridUnbNGXfs8HBxxanFzCm58K",
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
	}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("ValidateAddress(%s): %v", addr, err)
		}
	}

	invalid := []string{
		"",
		"not-base58-0OIl",
		"abc",
		base58.Encode(make([]byte, 31)),
		base58.Encode(make([]byte, 33)),
	}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("ValidateAddress(%q) should fail", addr)
		}
	}
}

func TestValidateSignature(t *testing.T) {
	sig := base58.Encode(make([]byte, 64))
	if err := ValidateSignature(sig); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	if err := ValidateSignature("short"); err == nil {
		t.Error("short signature accepted")
	}
	if err := ValidateSignature(base58.Encode(make([]byte, 32))); err == nil {
		t.Error("32-byte signature accepted")
	}
}

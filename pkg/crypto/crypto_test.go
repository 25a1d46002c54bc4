package crypto

import (
	"errors"
	"testing"
)

func TestPINHashing(t *testing.T) {
	hash, err := HashPIN("4821")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPIN(hash, "4821") {
		t.Fatal("expected pin verification to succeed")
	}

	if VerifyPIN(hash, "1111") {
		t.Fatal("expected pin verification to fail")
	}
}

func TestHashPINRejectsInvalidInput(t *testing.T) {
	for _, pin := range []string{"", "12", "12ab", "1234567890123"} {
		if _, err := HashPIN(pin); !errors.Is(err, ErrInvalidPIN) {
			t.Fatalf("pin %q: expected ErrInvalidPIN, got %v", pin, err)
		}
	}
}

func TestVerifyPINWithoutHash(t *testing.T) {
	if VerifyPIN("", "1234") {
		t.Fatal("expected verification against empty hash to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}

	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPINLength = 4
	maxPINLength = 12
)

// ErrInvalidPIN is returned when a PIN is not 4-12 ASCII digits.
var ErrInvalidPIN = errors.New("crypto: pin must be 4-12 digits")

// HashPIN returns a bcrypt hash of a family member PIN.
func HashPIN(pin string) (string, error) {
	pin = strings.TrimSpace(pin)
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPIN compares the hashed PIN with the plaintext candidate.
func VerifyPIN(hashedPIN, pin string) bool {
	if hashedPIN == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPIN), []byte(strings.TrimSpace(pin))) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

func validPIN(pin string) bool {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

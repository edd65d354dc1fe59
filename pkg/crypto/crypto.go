// Package crypto provides password hashing for relayd credentials.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrPasswordMismatch = errors.New("crypto: password mismatch")
	ErrMalformedHash    = errors.New("crypto: malformed password hash")
)

// argon2id parameters. Changing these invalidates stored hashes.
const (
	saltLen    = 16
	timeCost   = 1
	memoryCost = 64 * 1024
	threads    = 4
	keyLen     = 32
)

// HashPassword hashes a password with argon2id and a random salt.
// The result is "base64(salt)$base64(key)".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, timeCost, memoryCost, threads, keyLen)
	return base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(key), nil
}

// VerifyPassword checks a password against an encoded hash produced by
// HashPassword. Returns ErrPasswordMismatch when the password is wrong.
func VerifyPassword(password, encoded string) error {
	saltPart, keyPart, ok := strings.Cut(encoded, "$")
	if !ok {
		return ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(saltPart)
	if err != nil {
		return ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(keyPart)
	if err != nil {
		return ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, timeCost, memoryCost, threads, keyLen)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

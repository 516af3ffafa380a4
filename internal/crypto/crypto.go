// Package crypto seals backup archives with a user password.
// Uses Argon2id for key derivation and AES-256-GCM for authenticated encryption.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Sealed payload layout: magic | salt | nonce | ciphertext+tag.
var magic = []byte("NLSEAL1\x00")

// PasswordMinLength is the minimum accepted backup password length.
const PasswordMinLength = 8

const (
	saltSize = 16
	keySize  = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the password is empty.
	ErrInvalidKey = errors.New("invalid key")
)

// ValidatePassword checks the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLength)
	}
	return nil
}

// DeriveKey stretches password with salt into a 32-byte AES key.
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize)
}

// Seal encrypts plaintext under password. Every call uses a fresh salt and nonce.
func Seal(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrInvalidKey
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := newGCM(DeriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, magic), nil
}

// Open decrypts data produced by Seal. A wrong password and a tampered
// payload both yield ErrInvalidCiphertext.
func Open(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrInvalidKey
	}
	if !IsSealed(data) || len(data) < len(magic)+saltSize {
		return nil, ErrInvalidCiphertext
	}

	rest := data[len(magic):]
	salt, rest := rest[:saltSize], rest[saltSize:]

	gcm, err := newGCM(DeriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize+gcm.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, magic)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the sealed-payload header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

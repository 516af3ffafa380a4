package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpen_roundtrip(t *testing.T) {
	plaintext := []byte(`{"entries":[]}`)

	sealed, err := Seal(plaintext, "correct horse")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !IsSealed(sealed) {
		t.Error("IsSealed() = false for sealed payload")
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed payload contains the plaintext")
	}

	got, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open() = %q, want %q", got, plaintext)
	}
}

// TestSeal_freshSaltAndNonce verifies each seal produces a unique payload.
func TestSeal_freshSaltAndNonce(t *testing.T) {
	a, err := Seal([]byte("same"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal([]byte("same"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("Seal() produced identical payloads for the same input")
	}
}

func TestOpen_wrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(sealed, "wrong"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Open() error = %v, want ErrInvalidCiphertext", err)
	}
}

func TestOpen_tampered(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Open(sealed, "pw"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Open() error = %v, want ErrInvalidCiphertext", err)
	}
}

func TestOpen_malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"plain gzip", []byte{0x1f, 0x8b, 0x08}},
		{"header only", append([]byte(nil), magic...)},
		{"no nonce", append(append([]byte(nil), magic...), make([]byte, saltSize)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.data, "pw"); !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("Open() error = %v, want ErrInvalidCiphertext", err)
			}
		})
	}
}

func TestEmptyPassword(t *testing.T) {
	if _, err := Seal([]byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Seal() error = %v, want ErrInvalidKey", err)
	}
	if _, err := Open([]byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Open() error = %v, want ErrInvalidKey", err)
	}
}

func TestDeriveKey(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, saltSize)
	k1 := DeriveKey("pw", salt)
	k2 := DeriveKey("pw", salt)
	if len(k1) != keySize {
		t.Fatalf("len(DeriveKey()) = %d, want %d", len(k1), keySize)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey() is not deterministic")
	}
	if bytes.Equal(k1, DeriveKey("pw", bytes.Repeat([]byte{8}, saltSize))) {
		t.Error("DeriveKey() ignored the salt")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err == nil {
		t.Error("ValidatePassword(short) = nil, want error")
	}
	if err := ValidatePassword("long-enough"); err != nil {
		t.Errorf("ValidatePassword() error = %v", err)
	}
}

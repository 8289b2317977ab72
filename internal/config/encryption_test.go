// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package config

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

func TestNewCredentialEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{name: "valid secret", secret: testSecret, wantErr: nil},
		{name: "empty secret", secret: "", wantErr: ErrEmptySecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewCredentialEncryptor(tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewCredentialEncryptor() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && enc == nil {
				t.Fatal("NewCredentialEncryptor() returned nil encryptor")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor(testSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "simple password", plaintext: "opcua-password"},
		{name: "unicode", plaintext: "pässwörd-日本語"},
		{name: "long credential", plaintext: strings.Repeat("x", 1024)},
		{name: "single character", plaintext: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if ciphertext == tt.plaintext {
				t.Fatal("Encrypt() returned plaintext unchanged")
			}

			got, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	enc, err := NewCredentialEncryptor(testSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	// Random nonce per call: identical plaintexts must not collide.
	a, err := enc.Encrypt("same-password")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := enc.Encrypt("same-password")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptErrors(t *testing.T) {
	enc, err := NewCredentialEncryptor(testSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	valid, err := enc.Encrypt("credential")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	other, err := NewCredentialEncryptor("different-secret-also-32-characters!!")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	tests := []struct {
		name       string
		enc        *CredentialEncryptor
		ciphertext string
		wantErr    error
	}{
		{name: "empty ciphertext", enc: enc, ciphertext: "", wantErr: ErrEmptyCiphertext},
		{name: "invalid base64", enc: enc, ciphertext: "not-base64!!!", wantErr: ErrInvalidCiphertext},
		{name: "too short", enc: enc, ciphertext: "QUJD", wantErr: ErrCiphertextTooShort},
		{name: "wrong key", enc: other, ciphertext: valid, wantErr: ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.enc.Decrypt(tt.ciphertext)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	enc, err := NewCredentialEncryptor(testSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	ciphertext, err := enc.Encrypt("credential")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Flip a character in the base64 payload.
	tampered := []byte(ciphertext)
	if tampered[10] == 'A' {
		tampered[10] = 'B'
	} else {
		tampered[10] = 'A'
	}

	if _, err := enc.Decrypt(string(tampered)); err == nil {
		t.Error("Decrypt() accepted tampered ciphertext")
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		want       string
	}{
		{name: "empty", credential: "", want: ""},
		{name: "short", credential: "abc", want: "****"},
		{name: "exactly four", credential: "abcd", want: "****"},
		{name: "normal", credential: "supersecret", want: "****...cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskCredential(tt.credential); got != tt.want {
				t.Errorf("MaskCredential(%q) = %q, want %q", tt.credential, got, tt.want)
			}
		})
	}
}

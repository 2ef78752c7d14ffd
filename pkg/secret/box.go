// Package secret encrypts and decrypts the scalar values carried by
// encrypted action parameters.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const logPrefix = "secret:box"

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfSalt = []byte("action-dispatcher")

// ErrDecrypt is returned for ciphertext that does not open with the key.
var ErrDecrypt = errors.New("secret: cannot decrypt value")

// Decryptor turns ciphertext text into plaintext text.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// Box seals values with NaCl secretbox. Ciphertext is URL-safe base64 of
// nonce followed by the sealed box.
type Box struct {
	key [keySize]byte
}

// NewBox derives a box key from a passphrase.
func NewBox(passphrase string) (*Box, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("%s - encryption key is required", logPrefix)
	}
	reader := hkdf.New(sha256.New, []byte(passphrase), hkdfSalt, []byte("encrypted-params-v1"))
	b := &Box{}
	if _, err := io.ReadFull(reader, b.key[:]); err != nil {
		return nil, fmt.Errorf("%s - derive key: %w", logPrefix, err)
	}
	return b, nil
}

// Encrypt seals plaintext with a random nonce.
func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("%s - nonce: %w", logPrefix, err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt implements Decryptor.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(out), nil
}

// DecryptFunc adapts a function to Decryptor.
type DecryptFunc func(ciphertext string) (string, error)

// Decrypt implements Decryptor.
func (f DecryptFunc) Decrypt(ciphertext string) (string, error) {
	return f(ciphertext)
}

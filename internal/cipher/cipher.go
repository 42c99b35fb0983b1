// Package cipher encrypts message text at rest with a key derived from the
// owning user's provisioned key material.
//
// Tokens have the form "<iv base64>.<ciphertext hex>" and use AES-192-CBC
// with PKCS#7 padding and a fresh IV per call.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize        = 24 // AES-192
	tokenSeparator = "."

	// DefaultContext is the HKDF info string used when none is configured.
	DefaultContext = "wes-messenger/message-at-rest/v1"
)

var (
	// ErrMissingKey is returned when key material is absent or unusable.
	ErrMissingKey = errors.New("cipher: missing key material")
	// ErrDecryption is returned for any malformed or undecryptable token.
	ErrDecryption = errors.New("cipher: malformed ciphertext")
)

// KeyMaterial is a user's provisioned key pair, base64 encoded.
type KeyMaterial struct {
	PublicKey  string
	PrivateKey string
}

// Transform turns plaintext into tokens and back.
type Transform struct {
	info []byte
	rand io.Reader
}

// New creates a Transform. context separates key derivations of different
// deployments or key versions.
func New(context string) *Transform {
	if context == "" {
		context = DefaultContext
	}
	return &Transform{info: []byte(context), rand: rand.Reader}
}

// Encrypt encrypts plaintext for the owner of km.
func (t *Transform) Encrypt(plaintext string, km KeyMaterial) (string, error) {
	key, err := t.deriveKey(km)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(t.rand, iv); err != nil {
		return "", fmt.Errorf("cipher: generate iv: %w", err)
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(iv) + tokenSeparator + hex.EncodeToString(out), nil
}

// Decrypt recovers the plaintext of a token produced by Encrypt.
func (t *Transform) Decrypt(token string, km KeyMaterial) (string, error) {
	key, err := t.deriveKey(km)
	if err != nil {
		return "", err
	}

	ivPart, ctPart, ok := strings.Cut(token, tokenSeparator)
	if !ok {
		return "", ErrDecryption
	}
	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrDecryption
	}
	ct, err := hex.DecodeString(ctPart)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrDecryption
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher: %w", err)
	}
	out := make([]byte, len(ct))
	gocipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (t *Transform) deriveKey(km KeyMaterial) ([]byte, error) {
	if km.PrivateKey == "" || km.PublicKey == "" {
		return nil, ErrMissingKey
	}
	secret, err := base64.StdEncoding.DecodeString(km.PrivateKey)
	if err != nil || len(secret) == 0 {
		return nil, ErrMissingKey
	}
	salt, err := base64.StdEncoding.DecodeString(km.PublicKey)
	if err != nil {
		return nil, ErrMissingKey
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, t.info), key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	return key, nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrDecryption
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, ErrDecryption
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrDecryption
		}
	}
	return b[:len(b)-n], nil
}

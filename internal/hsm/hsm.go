// Package hsm provides the symmetric authenticated cipher used to seal card
// material at rest.
package hsm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Encrypter seals plaintext into an opaque, tamper-evident string.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// Config holds cipher configuration
type Config struct {
	MasterKey string
	Salt      []byte
}

// Cipher is AES-256-GCM keyed by a master key derived once at startup.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the master key and prepares the AEAD.
func New(config Config) (*Cipher, error) {
	if config.MasterKey == "" {
		return nil, errors.New("master key required")
	}
	if len(config.Salt) == 0 {
		return nil, errors.New("salt required")
	}

	block, err := aes.NewCipher(deriveKey(config.MasterKey, config.Salt, 32))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: gcm}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. It fails if the value was
// altered in any way. No request path calls it; it exists to verify
// authenticated sealing in tests.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encrypted data format: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func deriveKey(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, 3, 32*1024, 4, keyLen)
}

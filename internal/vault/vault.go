// Package vault encrypts the sensitive fields of the snapshot.
//
// Ciphertext is base64(nonce || AES-256-GCM sealed box). The key is derived
// from a passphrase with argon2id and a per-install salt stored next to the
// data file.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltSize is the length of the per-install key derivation salt.
	SaltSize = 16
	// KeySize selects AES-256.
	KeySize = 32

	nonceSize = 12

	// SaltFileName is the salt file created inside the data directory.
	SaltFileName = "vault.salt"
)

// ErrEmptyPassphrase is returned when no passphrase is configured.
var ErrEmptyPassphrase = errors.New("vault passphrase is empty")

// Cipher is a symmetric encryption provider bound to one derived key.
type Cipher struct {
	aead   cipher.AEAD
	logger *log.Logger
	rand   io.Reader
}

// DeriveKey derives an AES-256 key from passphrase and salt with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// New derives a key from passphrase and salt and returns a Cipher using it.
// If logger is nil, a default logger writing to stderr is used.
func New(passphrase string, salt []byte, logger *log.Logger) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes (got %d)", SaltSize, len(salt))
	}
	return NewWithKey(DeriveKey([]byte(passphrase), salt), logger)
}

// NewWithKey returns a Cipher for an already derived key.
func NewWithKey(key []byte, logger *log.Logger) (*Cipher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[vault] ", log.LstdFlags)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead, logger: logger, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext. On any failure (wrong key, corruption, or a value
// that was never encrypted) it logs a warning and returns ciphertext as is.
func (c *Cipher) Decrypt(ciphertext string) string {
	plaintext, err := c.Open(ciphertext)
	if err != nil {
		c.logger.Printf("Warning: decrypt failed, returning ciphertext: %v", err)
		return ciphertext
	}
	return plaintext
}

// Open is Decrypt without the fallback.
func (c *Cipher) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("ciphertext too short (%d bytes)", len(raw))
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open ciphertext: %w", err)
	}
	return string(plaintext), nil
}

// LoadOrCreateSalt reads the salt at path, creating a random one with mode
// 0600 when the file does not exist yet.
func LoadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < SaltSize {
			return nil, fmt.Errorf("salt file %s is truncated (%d bytes)", path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create salt directory: %w", err)
	}
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to write salt file %s: %w", path, err)
	}
	return salt, nil
}

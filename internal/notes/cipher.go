package notes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

var (
	ErrEmptySecret = errors.New("notes secret is empty")
	ErrCorrupted   = errors.New("note ciphertext is corrupted")
)

var keySalt = []byte("library/user-notes/v1")

// Cipher seals note bodies with AES-256-GCM. Stored form is nonce||ciphertext;
// the owning user id is bound as additional data.
type Cipher struct {
	aead cipher.AEAD
}

func DeriveKey(secret []byte) []byte {
	return argon2.IDKey(secret, keySalt, 1, 64*1024, 4, 32)
}

func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	block, err := aes.NewCipher(DeriveKey([]byte(secret)))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Seal(userID int64, plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), owner(userID)), nil
}

func (c *Cipher) Open(userID int64, sealed []byte) (string, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return "", ErrCorrupted
	}

	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], owner(userID))
	if err != nil {
		return "", ErrCorrupted
	}
	return string(plaintext), nil
}

func owner(userID int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(userID))
}

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// EncryptionService seals chat message content at rest with AES-GCM. The
// owning session id is bound as additional data, so a sealed message only
// opens under the session it was written for.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService accepts a raw 16, 24 or 32 byte key, or the same
// key hex or base64 encoded.
func NewEncryptionService(key string) (*EncryptionService, error) {
	k, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

func validKeyLen(n int) bool { return n == 16 || n == 24 || n == 32 }

func decodeKey(key string) ([]byte, error) {
	if validKeyLen(len(key)) {
		return []byte(key), nil
	}
	if b, err := hex.DecodeString(key); err == nil && validKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && validKeyLen(len(b)) {
		return b, nil
	}
	return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes (raw, hex or base64); got %d characters", len(key))
}

// Seal returns base64(nonce || ciphertext).
func (e *EncryptionService) Seal(sessionID, content string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := e.gcm.Seal(nonce, nonce, []byte(content), []byte(sessionID))
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (e *EncryptionService) Open(sessionID, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed content: %w", err)
	}
	ns := e.gcm.NonceSize()
	if len(data) < ns+e.gcm.Overhead() {
		return "", ErrCiphertextTooShort
	}
	pt, err := e.gcm.Open(nil, data[:ns], data[ns:], []byte(sessionID))
	if err != nil {
		return "", fmt.Errorf("open sealed content: %w", err)
	}
	return string(pt), nil
}

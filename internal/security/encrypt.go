package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

// Encryptor seals chat content at rest with AES-256-GCM. Payloads written
// under a rotated-out Fernet key stay readable as long as that key is listed
// in the legacy keys.
type Encryptor struct {
	aead   cipher.AEAD
	legacy []*fernet.Key
}

// NewEncryptor derives the AES key from secret with SHA-256, so any length of
// secret is accepted. Legacy keys that are not valid Fernet keys are skipped.
func NewEncryptor(secret []byte, legacyKeys []string) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(secret)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	e := &Encryptor{aead: aead}
	for _, raw := range legacyKeys {
		if k, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			e.legacy = append(e.legacy, k)
		}
	}
	return e, nil
}

func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(enc string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(enc); err == nil && len(raw) >= e.aead.NonceSize() {
		n := e.aead.NonceSize()
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}

	// ttl 0 disables the Fernet timestamp check.
	if len(e.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(enc), 0, e.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", errors.New("failed to decrypt payload")
}

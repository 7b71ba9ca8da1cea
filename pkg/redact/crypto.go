package redact

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptFailed indicates the ciphertext could not be authenticated
// under the supplied key -- either the key is wrong or the payload was
// tampered with. The law in §8 requires a wrong key to raise, not to
// silently produce garbage.
var ErrDecryptFailed = errors.New("redact: decryption failed (wrong key or corrupted payload)")

type serializedMap struct {
	Entries  []mapEntry     `json:"entries"`
	Counters map[string]int `json:"counters"`
}

// Encrypt serializes m deterministically and seals it with
// ChaCha20-Poly1305 under key (must be exactly chacha20poly1305.KeySize
// bytes, i.e. 32). The nonce is random and prefixed to the ciphertext.
func Encrypt(m *Map, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("redact: invalid key: %w", err)
	}

	plaintext, err := json.Marshal(serializedMap{
		Entries:  m.entries(),
		Counters: m.counterSnapshot(),
	})
	if err != nil {
		return nil, fmt.Errorf("redact: marshal map: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("redact: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt opens a payload produced by Encrypt and rehydrates a Map. A
// wrong key (or a tampered ciphertext) returns ErrDecryptFailed rather
// than a map with garbage contents (§8 "wrong key raises").
func Decrypt(ciphertext []byte, key []byte) (*Map, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("redact: invalid key: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrDecryptFailed
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	var sm serializedMap
	if err := json.Unmarshal(plaintext, &sm); err != nil {
		return nil, fmt.Errorf("redact: unmarshal map: %w", err)
	}

	m := NewMap()
	m.restore(sm.Entries, sm.Counters)
	return m, nil
}

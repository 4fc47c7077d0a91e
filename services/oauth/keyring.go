package oauth

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrNoKey is returned when the keyring has no usable key
	ErrNoKey = errors.New("token encryption key not configured")

	// ErrSealedTokenInvalid is returned when ciphertext cannot be opened with any key
	ErrSealedTokenInvalid = errors.New("sealed token cannot be opened")
)

// KeyLoader produces the current 32-byte sealing key
type KeyLoader func() ([]byte, error)

// Base64Key returns a loader that decodes a standard base64 key
func Base64Key(encoded string) KeyLoader {
	return func() ([]byte, error) {
		if encoded == "" {
			return nil, ErrNoKey
		}
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode token key: %w", err)
		}
		return key, nil
	}
}

// Keyring seals OAuth tokens with XChaCha20-Poly1305. The key is loaded on
// first use and dropped by Invalidate; keys replaced by Rotate stay
// available for opening tokens sealed before the rotation.
type Keyring struct {
	mu       sync.RWMutex
	load     KeyLoader
	current  cipher.AEAD
	previous []cipher.AEAD
}

// NewKeyring creates a keyring backed by load
func NewKeyring(load KeyLoader) *Keyring {
	return &Keyring{load: load}
}

// Seal encrypts plaintext. The output is nonce followed by ciphertext.
func (k *Keyring) Seal(plaintext []byte) ([]byte, error) {
	aead, err := k.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal
func (k *Keyring) Open(sealed []byte) ([]byte, error) {
	current, err := k.aead()
	if err != nil {
		return nil, err
	}

	k.mu.RLock()
	candidates := append([]cipher.AEAD{current}, k.previous...)
	k.mu.RUnlock()

	for _, aead := range candidates {
		if len(sealed) < aead.NonceSize()+aead.Overhead() {
			return nil, ErrSealedTokenInvalid
		}
		nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
		if plaintext, err := aead.Open(nil, nonce, ciphertext, nil); err == nil {
			return plaintext, nil
		}
	}
	return nil, ErrSealedTokenInvalid
}

// Invalidate drops the loaded key so the next use reloads it
func (k *Keyring) Invalidate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.current = nil
}

// Rotate makes key the sealing key. The previous key is kept for Open.
func (k *Keyring) Rotate(key []byte) error {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("rotate token key: %w", err)
	}

	// Tokens sealed under the outgoing key must stay readable.
	_, _ = k.aead()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current != nil {
		k.previous = append([]cipher.AEAD{k.current}, k.previous...)
	}
	k.current = aead
	k.load = func() ([]byte, error) { return key, nil }
	return nil
}

func (k *Keyring) aead() (cipher.AEAD, error) {
	k.mu.RLock()
	aead := k.current
	k.mu.RUnlock()
	if aead != nil {
		return aead, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current != nil {
		return k.current, nil
	}
	if k.load == nil {
		return nil, ErrNoKey
	}

	key, err := k.load()
	if err != nil {
		return nil, err
	}
	aead, err = chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("token key: %w", err)
	}
	k.current = aead
	return aead, nil
}

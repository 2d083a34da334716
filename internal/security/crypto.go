// Package security implements the symmetric encrypt/decrypt hooks named
// but left as an identity placeholder in spec §4.2 ("Implementations must
// preserve this seam"). The default Cipher is the identity; a real AEAD
// implementation is available for deployments that need payload
// confidentiality over the UDP transport.
package security

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher is the seam consumed by the RPC runtime around every send/receive.
// peer is included so a future implementation can key per-peer; the
// identity and ChaCha20-Poly1305 implementations below ignore it, matching
// spec §4.2's description of symmetric, not per-peer-keyed, encryption.
type Cipher interface {
	Encrypt(peer string, plaintext []byte) ([]byte, error)
	Decrypt(peer string, ciphertext []byte) ([]byte, error)
}

// Identity is the default seam implementation: a no-op pass-through.
type Identity struct{}

func (Identity) Encrypt(_ string, b []byte) ([]byte, error) { return b, nil }
func (Identity) Decrypt(_ string, b []byte) ([]byte, error) { return b, nil }

// aeadCipher wraps a ChaCha20-Poly1305 AEAD, prefixing each ciphertext with
// its random nonce so Decrypt is self-contained per datagram.
type aeadCipher struct {
	aead chacha20poly1305.AEAD
}

// NewAEAD derives a cipher from a shared secret. key must be exactly
// chacha20poly1305.KeySize (32) bytes; NewKeyFromSecret below derives one
// from an arbitrary-length config string.
func NewAEAD(key []byte) (Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("security: build AEAD: %w", err)
	}
	return &aeadCipher{aead: aead}, nil
}

// NewKeyFromSecret pads or truncates an operator-supplied secret to exactly
// chacha20poly1305.KeySize bytes, the same "pad-or-truncate to AES-256"
// approach the teacher repo's db.InitEncryption uses for its master key.
func NewKeyFromSecret(secret string) []byte {
	key := make([]byte, chacha20poly1305.KeySize)
	copy(key, []byte(secret))
	return key
}

func (c *aeadCipher) Encrypt(_ string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("security: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

func (c *aeadCipher) Decrypt(_ string, ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("security: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: open failed: %w", err)
	}
	return plain, nil
}

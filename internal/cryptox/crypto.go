// Package cryptox implements the authenticated-encryption envelope used for
// session bundles.
//
// An envelope is laid out as
//
//	tag(4) | nonce(12) | authTag(16) | ciphertext
//
// where tag identifies the AEAD scheme. Both supported schemes use a 96-bit
// nonce and a 128-bit authentication tag.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the only accepted key length for both schemes.
const KeySize = 32

const (
	tagSize   = 4
	nonceSize = 12
	authSize  = 16

	// HeaderSize is the number of bytes preceding the ciphertext.
	HeaderSize = tagSize + nonceSize + authSize
)

// Scheme names an AEAD construction. The string value is what gets persisted
// as the session's encryption marker.
type Scheme string

const (
	SchemeAESGCM   Scheme = "AES-256-GCM"
	SchemeChaCha20 Scheme = "CHACHA20-POLY1305"
)

var formatTags = map[Scheme][]byte{
	SchemeAESGCM:   []byte("DSLB"),
	SchemeChaCha20: []byte("DSLC"),
}

// ParseScheme accepts the persisted marker, case-insensitively.
func ParseScheme(s string) (Scheme, error) {
	for sc := range formatTags {
		if bytes.EqualFold([]byte(sc), []byte(s)) {
			return sc, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported encryption scheme %q", common.ErrConfiguration, s)
}

func newAEAD(scheme Scheme, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", common.ErrConfiguration, KeySize, len(key))
	}

	switch scheme {
	case SchemeAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SchemeChaCha20:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: unsupported encryption scheme %q", common.ErrConfiguration, scheme)
	}
}

// Seal encrypts plaintext with a fresh random nonce and returns the envelope.
func Seal(scheme Scheme, key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(scheme, key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(nonceSize)

	// Seal appends the auth tag after the ciphertext; the envelope wants it first.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct, auth := sealed[:len(sealed)-authSize], sealed[len(sealed)-authSize:]

	out := make([]byte, 0, HeaderSize+len(ct))
	out = append(out, formatTags[scheme]...)
	out = append(out, nonce...)
	out = append(out, auth...)
	out = append(out, ct...)
	return out, nil
}

// DetectScheme returns the scheme whose format tag prefixes payload.
func DetectScheme(payload []byte) (Scheme, bool) {
	if len(payload) < tagSize {
		return "", false
	}
	for sc, tag := range formatTags {
		if bytes.Equal(payload[:tagSize], tag) {
			return sc, true
		}
	}
	return "", false
}

// Open verifies and decrypts an envelope. A wrong format tag, a truncated
// header or a failed authentication all yield common.ErrIntegrity.
func Open(scheme Scheme, key, payload []byte) ([]byte, error) {
	if len(payload) < HeaderSize {
		return nil, fmt.Errorf("%w: envelope truncated (%d bytes)", common.ErrIntegrity, len(payload))
	}
	if got, ok := DetectScheme(payload); !ok || got != scheme {
		return nil, fmt.Errorf("%w: format tag mismatch", common.ErrIntegrity)
	}

	aead, err := newAEAD(scheme, key)
	if err != nil {
		return nil, err
	}

	nonce := payload[tagSize : tagSize+nonceSize]
	auth := payload[tagSize+nonceSize : HeaderSize]
	ct := payload[HeaderSize:]

	sealed := make([]byte, 0, len(ct)+authSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, auth...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrIntegrity)
	}
	return plaintext, nil
}

// Checksum returns the lowercase hex SHA-256 of b.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// KeyFingerprint identifies a key in logs without revealing it.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:4])
}

package bundle

import (
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/cryptox"
)

// Bundle is the in-flight artifact produced by Encode. It is uploaded and
// then discarded; only the checksum and encryption marker are persisted.
type Bundle struct {
	Payload    []byte
	Checksum   string
	Encryption *string
}

func (b *Bundle) Size() int64 { return int64(len(b.Payload)) }

// EncryptionLabel is the marker as a plain string, "none" when unencrypted.
func (b *Bundle) EncryptionLabel() string {
	if b.Encryption == nil {
		return "none"
	}
	return *b.Encryption
}

type Codec struct {
	key    []byte
	scheme cryptox.Scheme
}

// NewCodec returns a codec that seals payloads with key under scheme. A nil
// key disables encryption. An empty scheme defaults to AES-256-GCM.
func NewCodec(key []byte, scheme cryptox.Scheme) (*Codec, error) {
	if scheme == "" {
		scheme = cryptox.SchemeAESGCM
	}
	if _, err := cryptox.ParseScheme(string(scheme)); err != nil {
		return nil, err
	}
	if key != nil && len(key) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: bundle encryption key must be %d bytes, got %d",
			common.ErrConfiguration, cryptox.KeySize, len(key))
	}
	return &Codec{key: key, scheme: scheme}, nil
}

// NewCodecFromBase64 parses encodedKey with ParseKey and builds a codec.
func NewCodecFromBase64(encodedKey string, scheme cryptox.Scheme) (*Codec, error) {
	key, err := ParseKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return NewCodec(key, scheme)
}

func (c *Codec) Encrypted() bool { return c.key != nil }

// KeyID is a short fingerprint of the configured key, or "" when encryption
// is off.
func (c *Codec) KeyID() string {
	if c.key == nil {
		return ""
	}
	return cryptox.KeyFingerprint(c.key)
}

// Encode archives dir and seals the result.
func (c *Codec) Encode(dir string) (*Bundle, error) {
	archive, err := Archive(dir)
	if err != nil {
		return nil, err
	}
	return c.Seal(archive)
}

// Seal wraps an already built archive. The checksum always covers the
// returned payload, post-encryption when a key is set.
func (c *Codec) Seal(archive []byte) (*Bundle, error) {
	if c.key == nil {
		return &Bundle{Payload: archive, Checksum: cryptox.Checksum(archive)}, nil
	}

	payload, err := cryptox.Seal(c.scheme, c.key, archive)
	if err != nil {
		return nil, err
	}
	marker := string(c.scheme)
	return &Bundle{Payload: payload, Checksum: cryptox.Checksum(payload), Encryption: &marker}, nil
}

// Decode returns the archive inside payload. Envelopes with an unknown tag or
// a failed authentication return common.ErrIntegrity. A keyed codec only
// accepts sealed envelopes. An encrypted payload given to a codec without a
// key is a configuration error.
func (c *Codec) Decode(payload []byte) ([]byte, error) {
	scheme, sealed := cryptox.DetectScheme(payload)
	if !sealed {
		if c.key != nil {
			return nil, fmt.Errorf("%w: bundle key is configured but payload has no envelope tag", common.ErrIntegrity)
		}
		if looksLikeZip(payload) {
			return payload, nil
		}
		return nil, fmt.Errorf("%w: payload is neither a sealed envelope nor a zip archive", common.ErrIntegrity)
	}

	if c.key == nil {
		return nil, fmt.Errorf("%w: payload is encrypted (%s) but no bundle key is configured",
			common.ErrConfiguration, scheme)
	}
	return cryptox.Open(scheme, c.key, payload)
}

// Verify checks payload against a persisted checksum.
func Verify(payload []byte, checksum string) error {
	if got := cryptox.Checksum(payload); got != checksum {
		return fmt.Errorf("%w: checksum mismatch (want %s, got %s)", common.ErrIntegrity, checksum, got)
	}
	return nil
}

// Restore verifies, decodes and extracts payload into dest.
func (c *Codec) Restore(payload []byte, checksum, dest string) error {
	if checksum != "" {
		if err := Verify(payload, checksum); err != nil {
			return err
		}
	}
	archive, err := c.Decode(payload)
	if err != nil {
		return err
	}
	return Extract(archive, dest)
}

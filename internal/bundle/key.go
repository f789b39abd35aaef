package bundle

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/cryptox"
)

// ParseKey decodes a base64 bundle key. An empty string means "no
// encryption" and returns a nil key. Anything that is not exactly 32 bytes
// after decoding is a configuration error.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}

	decoders := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range decoders {
		b, err := enc.DecodeString(encoded)
		if err != nil {
			lastErr = err
			continue
		}
		if len(b) != cryptox.KeySize {
			return nil, fmt.Errorf("%w: bundle encryption key must decode to %d bytes, got %d",
				common.ErrConfiguration, cryptox.KeySize, len(b))
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: bundle encryption key is not valid base64: %v", common.ErrConfiguration, lastErr)
}

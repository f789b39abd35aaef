package artifacts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewBundleKey mints sessions/{id}/{unixMillis}-{uuid}{ext}. The extension
// follows the negotiated content type: .zip for zip archives, .bin otherwise.
func NewBundleKey(sessionID, contentType string, now time.Time) string {
	return fmt.Sprintf("sessions/%s/%d-%s%s", sessionID, now.UnixMilli(), uuid.NewString(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "", "application/zip", "application/x-zip-compressed":
		return ".zip"
	default:
		return ".bin"
	}
}

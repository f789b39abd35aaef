package artifacts

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
)

const (
	MinTTL     = 60 * time.Second
	MaxTTL     = 3600 * time.Second
	DefaultTTL = 900 * time.Second
)

// CheckTTL rejects lifetimes outside [MinTTL, MaxTTL].
func CheckTTL(ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return fmt.Errorf("%w: url ttl must be between %d and %d seconds, got %s",
			common.ErrValidation, int(MinTTL.Seconds()), int(MaxTTL.Seconds()), ttl)
	}
	return nil
}

// ResolveTTL turns an optional caller-supplied seconds value into a checked
// duration, falling back to def (or DefaultTTL when def is zero).
func ResolveTTL(seconds *int, def time.Duration) (time.Duration, error) {
	if def == 0 {
		def = DefaultTTL
	}
	ttl := def
	if seconds != nil {
		// Bound the raw value first so the multiplication cannot overflow.
		if s := int64(*seconds); s < int64(MinTTL/time.Second) || s > int64(MaxTTL/time.Second) {
			return 0, fmt.Errorf("%w: url ttl must be between %d and %d seconds, got %d",
				common.ErrValidation, int(MinTTL.Seconds()), int(MaxTTL.Seconds()), *seconds)
		}
		ttl = time.Duration(*seconds) * time.Second
	}
	if err := CheckTTL(ttl); err != nil {
		return 0, err
	}
	return ttl, nil
}

// Package timer keeps one countdown per lead, derived from the server's
// absolute expiry instant.
package timer

import (
	"fmt"
	"strings"
	"time"
)

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseExpiry parses an ISO8601 expiry. Timestamps without a zone are UTC.
func ParseExpiry(expiresAt *string) (time.Time, bool) {
	if expiresAt == nil {
		return time.Time{}, false
	}
	s := strings.TrimSpace(*expiresAt)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CalculateRemainingTime returns the whole seconds left until expiresAt,
// never negative. A nil, empty or malformed timestamp yields 0.
func CalculateRemainingTime(expiresAt *string, now time.Time) int {
	expiry, ok := ParseExpiry(expiresAt)
	if !ok {
		return 0
	}
	return secondsUntil(expiry, now)
}

func secondsUntil(expiry, now time.Time) int {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// Format renders seconds as m:ss, or h:mm:ss past an hour.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

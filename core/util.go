package core

import (
	"strings"
	"time"
)

// NowFunc returns the current time. mockable
var NowFunc = time.Now

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Now returns NowFunc() in UTC, truncated to microseconds (the precision both engines keep).
func Now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// Package calver implements the calendar version scheme used for release
// tags: YYYY.MM.DD, zero padded, always in UTC.
package calver

import (
	"fmt"
	"time"
)

// Layout is the tag layout in time.Format notation.
const Layout = "2006.01.02"

// Now formats the tag for the given instant in UTC.
func Now(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse strictly parses a calendar version tag. Unpadded or otherwise
// malformed tags are rejected.
func Parse(tag string) (time.Time, error) {
	if len(tag) != len(Layout) {
		return time.Time{}, fmt.Errorf("invalid calendar version %q: want format YYYY.MM.DD", tag)
	}
	for i, r := range tag {
		if Layout[i] == '.' {
			if r != '.' {
				return time.Time{}, fmt.Errorf("invalid calendar version %q: want format YYYY.MM.DD", tag)
			}
			continue
		}
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("invalid calendar version %q: want format YYYY.MM.DD", tag)
		}
	}
	t, err := time.ParseInLocation(Layout, tag, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar version %q: %w", tag, err)
	}
	return t, nil
}

// IsValid reports whether tag is a well-formed calendar version.
func IsValid(tag string) bool {
	_, err := Parse(tag)
	return err == nil
}

// Compare orders two calendar versions chronologically. It returns -1, 0
// or 1.
func Compare(a, b string) (int, error) {
	ta, err := Parse(a)
	if err != nil {
		return 0, err
	}
	tb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	switch {
	case ta.Before(tb):
		return -1, nil
	case ta.After(tb):
		return 1, nil
	default:
		return 0, nil
	}
}

// Package duration parses the human duration strings accepted by the
// membership commands: a leading integer plus a single unit letter, or the
// literal "perm" for a grant with no expiry.
package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat is returned for anything that is neither "perm" nor an
// integer followed by one of h, d, m, s.
var ErrInvalidFormat = errors.New("invalid duration format")

// Permanent is the case-insensitive token meaning "no expiry".
const Permanent = "perm"

var pattern = regexp.MustCompile(`^(\d+)([hdms])$`)

// Parse converts a duration string to a time.Duration. The second return
// is false when the input is the permanent token; the returned duration is
// zero in that case. Combined units ("1h30m") are not supported.
func Parse(s string) (time.Duration, bool, error) {
	if strings.EqualFold(strings.TrimSpace(s), Permanent) {
		return 0, false, nil
	}

	m := pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	var unit time.Duration
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "m":
		unit = time.Minute
	case "s":
		unit = time.Second
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return time.Duration(value) * unit, true, nil
}

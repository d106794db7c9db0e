// Package timezone validates and resolves the IANA timezone identifiers
// carried in user preferences.
package timezone

import (
	"time"

	"github.com/pkg/errors"
)

// Parse resolves an IANA timezone identifier such as "Europe/Berlin". An
// empty identifier means UTC. Invalid identifiers resolve to UTC alongside
// the error so callers always get a usable location.
func Parse(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, errors.Wrapf(err, "invalid timezone %q", tz)
	}
	return loc, nil
}

// IsValid reports whether tz is a resolvable timezone identifier.
func IsValid(tz string) bool {
	_, err := Parse(tz)
	return err == nil
}

// NowIn returns the current time in the given timezone, falling back to UTC
// when the identifier is invalid.
func NowIn(tz string) time.Time {
	loc, _ := Parse(tz)
	return time.Now().In(loc)
}

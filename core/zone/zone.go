// Package zone resolves location time zones and the local calendar date.
package zone

import (
	"strings"
	"time"
	_ "time/tzdata"

	"cafeteria-menu-system/core/domain"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Resolve loads an IANA zone identifier. The process-local "Local" zone and
// the empty string are rejected.
func Resolve(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == "Local" {
		return nil, &domain.ValidationError{Field: "time_zone", Message: "time zone is required", Err: domain.ErrInvalidTimeZone}
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, &domain.ValidationError{Field: "time_zone", Message: "unknown time zone " + id, Err: domain.ErrInvalidTimeZone}
	}
	return loc, nil
}

// Today is the calendar date of now as observed in loc.
func Today(now time.Time, loc *time.Location) domain.Date {
	return domain.DateOf(now.In(loc))
}

// TodayIn resolves id and returns today's date there.
func TodayIn(clock Clock, id string) (domain.Date, error) {
	loc, err := Resolve(id)
	if err != nil {
		return domain.Date{}, err
	}
	return Today(clock.Now(), loc), nil
}

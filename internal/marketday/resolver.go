package marketday

import (
	"fmt"
	"time"

	"github.com/scmhub/calendar"
)

// maxWalkback bounds the business-day search so a broken clock or calendar
// cannot loop forever.
const maxWalkback = 10

// Resolver maps a requested as-of date to the trading day a 0DTE chain can
// actually exist on.
type Resolver struct {
	nyse     *calendar.Calendar
	location *time.Location
}

// NewResolver creates a resolver for the NYSE calendar in the given
// timezone (typically America/New_York). An unknown timezone falls back to
// UTC.
func NewResolver(timezone string) *Resolver {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return &Resolver{
		nyse:     calendar.XNYS(),
		location: loc,
	}
}

// Today returns the current date in the resolver's timezone.
func (r *Resolver) Today() time.Time {
	now := time.Now().In(r.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, r.location)
}

// Location returns the resolver's timezone location.
func (r *Resolver) Location() *time.Location {
	return r.location
}

// IsTradingDay reports whether the date is an NYSE business day.
func (r *Resolver) IsTradingDay(date time.Time) bool {
	// Anchor at noon so DST transitions cannot shift the calendar date.
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, r.location)
	return r.nyse.IsBusinessDay(noon)
}

// Effective walks back from the requested date to the most recent NYSE
// business day. Weekends and holidays resolve to the prior session.
func (r *Resolver) Effective(date time.Time) (time.Time, error) {
	d := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, r.location)
	for i := 0; i < maxWalkback; i++ {
		if r.nyse.IsBusinessDay(d) {
			return d, nil
		}
		d = d.AddDate(0, 0, -1)
	}
	return time.Time{}, fmt.Errorf("no trading day within %d days before %s", maxWalkback, date.Format("2006-01-02"))
}

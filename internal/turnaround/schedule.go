// Package turnaround implements the delivery-date and cutoff rules: business
// day arithmetic over an irregular holiday calendar, timezone-aware cutoff
// checks, and same-day eligibility lookup.
package turnaround

import (
	"time"

	"github.com/rotisserie/eris"
)

// Calendar is the set of holiday dates, keyed by "2006-01-02" in the business
// timezone. Weekends are always skipped and are not listed here.
type Calendar map[string]struct{}

// IsHoliday reports whether the date (ignoring time of day) is a holiday.
func (c Calendar) IsHoliday(t time.Time) bool {
	_, ok := c[t.Format("2006-01-02")]
	return ok
}

// StandardDays returns the standard turnaround in business days for a total
// billable page count: 2 + floor((pages - 1) / 2), pages >= 1.
func StandardDays(totalBillablePages float64) int {
	pages := int(totalBillablePages)
	if pages < 1 {
		pages = 1
	}
	return 2 + (pages-1)/2
}

// DeliveryDate walks forward from now one calendar day at a time, skipping
// Saturdays, Sundays, and calendar holidays, until daysToAdd qualifying
// business days have been consumed. The holiday set is irregular, so there is
// no closed form.
func DeliveryDate(now time.Time, daysToAdd int, cal Calendar) time.Time {
	date := now
	remaining := daysToAdd
	for remaining > 0 {
		date = date.AddDate(0, 0, 1)
		if isBusinessDay(date, cal) {
			remaining--
		}
	}
	return date
}

func isBusinessDay(t time.Time, cal Calendar) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !cal.IsHoliday(t)
}

// CutoffAvailable reports whether an order placed now still makes today's
// cutoff in the business timezone. Always false on weekends.
func CutoffAvailable(now time.Time, hour, minute int, loc *time.Location) bool {
	local := now.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	return local.Before(cutoff)
}

// LoadLocation resolves the configured business timezone.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, eris.Wrapf(err, "turnaround: load timezone %s", name)
	}
	return loc, nil
}

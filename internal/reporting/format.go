package reporting

import (
	"time"
	_ "time/tzdata"
)

const easternLayout = "2006-01-02 03:04 PM ET"

var eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Eastern is the office time zone used for display and day filters.
func Eastern() *time.Location { return eastern }

// FormatEastern renders t for staff. A zero time renders as "".
func FormatEastern(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(eastern).Format(easternLayout)
}

package render

import (
	"time"

	"github.com/mnhsh/digital-capsule/internal/capsule"
)

const (
	DefaultTimezone = "Asia/Manila"
	// medium date, short time
	DefaultLayout = "Jan 2, 2006, 3:04 PM"
)

// TimeFormat renders timestamps in one fixed zone regardless of where the
// server runs.
type TimeFormat struct {
	Location *time.Location
	Layout   string
}

// NewTimeFormat loads the named zone. Manila has no DST, so a fixed +08:00
// zone stands in when the tz database is unavailable.
func NewTimeFormat(zone string) (TimeFormat, error) {
	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		if zone != DefaultTimezone {
			return TimeFormat{}, err
		}
		loc = time.FixedZone("PHT", 8*60*60)
	}
	return TimeFormat{Location: loc, Layout: DefaultLayout}, nil
}

func (f TimeFormat) FormatTime(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := f.Layout
	if layout == "" {
		layout = DefaultLayout
	}
	return t.In(loc).Format(layout)
}

// Format returns "" for an absent timestamp and the raw text for one that
// cannot be read as a time.
func (f TimeFormat) Format(ts capsule.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	t, ok := ts.Time()
	if !ok {
		return ts.Raw()
	}
	return f.FormatTime(t)
}

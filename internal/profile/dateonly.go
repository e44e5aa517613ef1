package profile

import (
	"encoding/json"
	"time"
)

// DateOnly is a calendar date with no meaningful time-of-day. Subscription
// end dates are persisted in this form; the evaluator normalizes them to
// the end of the day before comparing against the clock.
type DateOnly struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDateOnly builds a DateOnly from the calendar date of t in t's location.
func NewDateOnly(t time.Time) DateOnly {
	y, m, d := t.Date()
	return DateOnly{Time: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// ParseDateOnly parses "2006-01-02"; a full RFC 3339 timestamp is accepted
// too and truncated to its date.
func ParseDateOnly(s string) (DateOnly, error) {
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return DateOnly{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return DateOnly{}, err
	}
	return NewDateOnly(t.Local()), nil
}

// EndOfDay returns the last instant of the calendar day, so a subscription
// that ends "today" stays valid through the whole day.
func (d DateOnly) EndOfDay() time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 23, 59, 59, int(time.Second-time.Nanosecond), d.Location())
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDateOnly(s)
	if err != nil {
		return err
	}
	d.Time = parsed.Time
	return nil
}

func (d DateOnly) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(d.Format(dateLayout))
}

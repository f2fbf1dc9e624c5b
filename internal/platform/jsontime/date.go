// Package jsontime decodes calendar dates in request bodies. DATE columns
// are carried as time.Time, whose own decoder only takes RFC 3339.
package jsontime

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the plain calendar date form used in queries and bodies.
const DateLayout = "2006-01-02"

// Parse accepts either YYYY-MM-DD (read as midnight UTC) or an RFC 3339
// timestamp.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or an RFC 3339 timestamp", s)
	}
	return t, nil
}

// Date is a time.Time that decodes from either form Parse accepts. JSON
// null leaves the value unchanged.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date %s: expected a string", b)
	}
	t, err := Parse(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// From wraps t so a decode that omits the field keeps the current value.
func From(t time.Time) Date { return Date{Time: t} }

// FromPtr is From for optional dates.
func FromPtr(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Time: *t}
}

// Ptr returns the decoded value of an optional date.
func (d *Date) Ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

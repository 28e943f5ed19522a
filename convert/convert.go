// Package convert turns Go values into their wire form for a declared
// column type. Dates are decomposed into calendar parts; everything else
// passes through unchanged.
package convert

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Date is a calendar day.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// DateTime is a calendar day with a wall clock time. FractionalSeconds
// holds milliseconds.
type DateTime struct {
	Date
	Hours             int `json:"hours"`
	Minutes           int `json:"minutes"`
	Seconds           int `json:"seconds"`
	FractionalSeconds int `json:"fractionalSeconds"`
}

// DateOf decomposes t in its own location.
func DateOf(t time.Time) Date {
	return Date{Day: t.Day(), Month: int(t.Month()), Year: t.Year()}
}

// DateTimeOf decomposes t in its own location.
func DateTimeOf(t time.Time) DateTime {
	return DateTime{
		Date:              DateOf(t),
		Hours:             t.Hour(),
		Minutes:           t.Minute(),
		Seconds:           t.Second(),
		FractionalSeconds: t.Nanosecond() / int(time.Millisecond),
	}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight of the day in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// Value binds the date in ODBC canonical form.
func (d Date) Value() (driver.Value, error) { return d.String(), nil }

func (dt DateTime) String() string {
	return fmt.Sprintf("%s %02d:%02d:%02d.%03d",
		dt.Date, dt.Hours, dt.Minutes, dt.Seconds, dt.FractionalSeconds)
}

// Time rebuilds the instant in loc.
func (dt DateTime) Time(loc *time.Location) time.Time {
	return time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hours, dt.Minutes, dt.Seconds, dt.FractionalSeconds*int(time.Millisecond), loc)
}

// Value binds the timestamp in ODBC canonical form.
func (dt DateTime) Value() (driver.Value, error) { return dt.String(), nil }

type kind int

const (
	passThrough kind = iota
	dateKind
	dateTimeKind
)

func classify(declaredType string) kind {
	t := strings.ToLower(strings.TrimSpace(declaredType))
	switch {
	case t == "date":
		return dateKind
	case t == "datetime", t == "smalldatetime", strings.HasPrefix(t, "timestamp"):
		return dateTimeKind
	}
	return passThrough
}

// Convert returns the wire value of value for a column of declaredType.
// time.Time values bound to date columns become a Date, and to datetime
// or timestamp columns a DateTime. A nil *time.Time becomes nil. Values
// of any other type pass through.
func Convert(value any, declaredType string) any {
	k := classify(declaredType)
	if k == passThrough {
		return value
	}
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return nil
		}
		t = *v
	default:
		return value
	}
	if k == dateKind {
		return DateOf(t)
	}
	return DateTimeOf(t)
}

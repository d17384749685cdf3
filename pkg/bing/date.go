package bing

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidDate = errors.New("invalid date")
)

// Date represents one calendar day, which is the unit the daily image
// feed deals in. It has no time-of-day component. The zero value is
// "no date" and converts to nothing.
//
// The feed identifies days by a compact decimal encoding,
// year*10000 + month*100 + day, e.g. 20140828 for 2014-08-28. Stored
// metadata is keyed by the same number.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Today returns the current calendar day in local time.
func Today() Date {
	return DateOf(time.Now())
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// DateFromCompact converts the feed's compact integer encoding back
// to a Date. It fails if the digits do not name a real calendar day.
func DateFromCompact(n int) (Date, error) {
	if n <= 0 {
		return Date{}, errors.Wrapf(ErrInvalidDate, "compact value %d", n)
	}
	day := n % 100
	n /= 100
	month := n % 100
	year := n / 100
	d := Date{Year: year, Month: time.Month(month), Day: day}
	// time.Date normalizes out-of-range components (e.g. Feb 30 ->
	// Mar 2), so a round trip detects them.
	if DateOf(d.Time()) != d {
		return Date{}, errors.Wrapf(ErrInvalidDate, "%04d-%02d-%02d is not a calendar day", year, month, day)
	}
	return d, nil
}

// ParseCompact converts the feed's decimal string encoding to a Date.
func ParseCompact(s string) (Date, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return Date{}, errors.Wrapf(ErrInvalidDate, "startdate %q", s)
	}
	return DateFromCompact(n)
}

// IsZero reports whether d is the "no date" value.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Compact returns the feed's integer encoding of d, or 0 for the zero
// Date.
func (d Date) Compact() int {
	if d.IsZero() {
		return 0
	}
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

// CompactString returns the zero-padded YYYYMMDD form used to name
// image files and feed records.
func (d Date) CompactString() string {
	return strconv.Itoa(d.Compact())
}

func (d Date) String() string {
	return d.CompactString()
}

// Time returns midnight local time on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.Local)
}

// AddDays returns the day n days after d (or before, for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysSince returns the number of whole days from o to d; negative if
// d is earlier than o. The arithmetic is done on UTC midnights so DST
// transitions cannot skew the count.
func (d Date) DaysSince(o Date) int {
	du := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	ou := time.Date(o.Year, o.Month, o.Day, 0, 0, 0, 0, time.UTC)
	return int(du.Sub(ou).Hours() / 24)
}

// Before reports whether d falls earlier in the calendar than o.
func (d Date) Before(o Date) bool {
	return d.Compact() < o.Compact()
}

// After reports whether d falls later in the calendar than o.
func (d Date) After(o Date) bool {
	return d.Compact() > o.Compact()
}

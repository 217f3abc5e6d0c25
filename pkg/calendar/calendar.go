package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Brasília must resolve on hosts without a zoneinfo database
)

const (
	isoLayout     = "2006-01-02"
	displayLayout = "02/01/2006"

	// Accepted year range; anything else is a typo.
	minYear = 1900
	maxYear = 2999
)

// Brasilia is the civil timezone every "today" is evaluated in.
var Brasilia = loadBrasilia()

func loadBrasilia() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// Date is a civil calendar date without time of day or zone.
// The zero value means "no date".
type Date struct {
	t time.Time
}

// NewDate builds a Date from its components; out-of-range values normalize like time.Date.
func NewDate(year int, month time.Month, d int) Date {
	return Date{t: time.Date(year, month, d, 0, 0, 0, 0, time.UTC)}
}

// DateOf keeps the civil date of t as read on t's own clock.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts a bare ISO date or an ISO date-time. Only the date part is
// significant, no zone conversion is applied.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	datePart, _, _ := strings.Cut(s, "T")
	datePart, _, _ = strings.Cut(datePart, " ")
	t, err := time.Parse(isoLayout, datePart)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if y := t.Year(); y < minYear || y > maxYear {
		return Date{}, fmt.Errorf("invalid date %q: year must be between %d and %d", s, minYear, maxYear)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Today returns the current civil date in Brasília.
func Today(now time.Time) Date {
	return TodayIn(now, Brasilia)
}

// TodayIn returns the civil date of now as seen in loc.
func TodayIn(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = Brasilia
	}
	return DateOf(now.In(loc))
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Year() int { return d.t.Year() }

func (d Date) Month() time.Month { return d.t.Month() }

func (d Date) Day() int { return d.t.Day() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// AddDays moves the date by n days.
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// AddMonths moves the date by n calendar months. When the day does not exist in
// the target month it is clamped to that month's last day (Jan 31 + 1 = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	if d.IsZero() {
		return d
	}
	y, m, dd := d.t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); dd > last {
		dd = last
	}
	return NewDate(first.Year(), first.Month(), dd)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(isoLayout)
}

// DaysUntil is the signed number of days from ref to d.
func DaysUntil(d, ref Date) int {
	return d.dayNumber() - ref.dayNumber()
}

// dayNumber counts days since 1970-01-01 from the civil fields.
func (d Date) dayNumber() int {
	y, m, dd := d.t.Date()
	if m <= time.February {
		y--
	}
	era := y / 400
	if y < 0 {
		era = (y - 399) / 400
	}
	yoe := y - era*400
	mp := (int(m) + 9) % 12
	doy := (153*mp+2)/5 + dd - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// DaysOverdue is max(0, whole days from due to ref).
func DaysOverdue(due, ref Date) int {
	if due.IsZero() {
		return 0
	}
	n := DaysUntil(ref, due)
	if n < 0 {
		return 0
	}
	return n
}

// Latest returns the later of the given dates, zero when none are set.
func Latest(dates ...Date) Date {
	var out Date
	for _, d := range dates {
		if d.After(out) {
			out = d
		}
	}
	return out
}

// FormatDisplayDate renders an ISO date or date-time as dd/mm/yyyy, ignoring
// time of day. Unparseable input is returned as is.
func FormatDisplayDate(iso string) string {
	d, err := ParseDate(iso)
	if err != nil {
		return iso
	}
	if d.IsZero() {
		return "-"
	}
	return d.t.Format(displayLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as TEXT, NULL when unset.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = DateOf(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into calendar.Date", src)
	}
}

// Package period turns period tokens such as "today" or "7" into time windows.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

// ErrInvalidPeriod matches every *InvalidPeriodError.
var ErrInvalidPeriod = errors.New("invalid period")

// InvalidPeriodError reports a token that is not a known period.
type InvalidPeriodError struct {
	Token string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q: want today, week, month or a positive number of days", e.Token)
}

func (e *InvalidPeriodError) Unwrap() error {
	return ErrInvalidPeriod
}

// Canonical returns the normalized spelling of token: "today", "week",
// "month" or a plain day count, so that "07", "+7" and "7days" all become "7".
func Canonical(token string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(token)); t {
	case "today", "week", "month":
		return t, nil
	default:
		n, err := strconv.Atoi(strings.TrimSuffix(t, "days"))
		if err != nil || n < 1 {
			return "", &InvalidPeriodError{Token: token}
		}
		return strconv.Itoa(n), nil
	}
}

// Resolve returns the half-open window for token relative to now. Day boundaries
// are local midnights in loc (time.Local when nil); the window is returned in UTC.
//
//	today  -> [midnight(now), next midnight)
//	week   -> [Monday 00:00 of now's week, next midnight)
//	month  -> [1st of the month, 1st of next month)
//	N      -> [midnight(now) - (N-1) days, next midnight)
//
// "3days" and "14days" are accepted as aliases for 3 and 14.
func Resolve(token string, now time.Time, loc *time.Location) (model.Window, error) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	canon, err := Canonical(token)
	if err != nil {
		return model.Window{}, err
	}

	var start, end time.Time
	switch canon {
	case "today":
		start, end = time.Date(y, m, d, 0, 0, 0, 0, loc), tomorrow
	case "week":
		sinceMonday := (int(local.Weekday()) + 6) % 7
		start, end = time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc), tomorrow
	case "month":
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	default:
		n, _ := strconv.Atoi(canon)
		start, end = time.Date(y, m, d-(n-1), 0, 0, 0, 0, loc), tomorrow
	}

	return model.Window{Start: start.UTC(), End: end.UTC()}, nil
}

// Year returns [Jan 1 of year, Jan 1 of year+1) in loc.
func Year(year int, loc *time.Location) model.Window {
	if loc == nil {
		loc = time.Local
	}
	return model.Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, loc).UTC(),
		End:   time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc).UTC(),
	}
}

// Days returns the number of local calendar days the window spans.
func Days(w model.Window, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	n := 0
	for d := w.Start.In(loc); d.Before(w.End); {
		y, m, day := d.Date()
		d = time.Date(y, m, day+1, 0, 0, 0, 0, loc)
		n++
	}
	return n
}

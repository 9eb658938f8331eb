package shared

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidQuarter indicates a quarter outside 1..4 or an unparsable label.
var ErrInvalidQuarter = errors.New("quarter invalid")

// Quarter identifies a calendar quarter.
type Quarter struct {
	Year int `json:"year"`
	Q    int `json:"quarter"`
}

// QuarterOf returns the calendar quarter containing t, evaluated in UTC.
func QuarterOf(t time.Time) Quarter {
	t = t.UTC()
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// NewQuarter validates the quarter number.
func NewQuarter(year, q int) (Quarter, error) {
	if q < 1 || q > 4 || year <= 0 {
		return Quarter{}, fmt.Errorf("%w: Q%d %d", ErrInvalidQuarter, q, year)
	}
	return Quarter{Year: year, Q: q}, nil
}

// ParseQuarter reads labels in the "Q2 2024" form.
func ParseQuarter(label string) (Quarter, error) {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) != 2 || len(fields[0]) != 2 || (fields[0][0] != 'Q' && fields[0][0] != 'q') {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, label)
	}
	q, err := strconv.Atoi(fields[0][1:])
	if err != nil {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, label)
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, label)
	}
	return NewQuarter(year, q)
}

// Label renders the quarter as "Q{q} {year}".
func (q Quarter) Label() string {
	return "Q" + strconv.Itoa(q.Q) + " " + strconv.Itoa(q.Year)
}

// String implements fmt.Stringer.
func (q Quarter) String() string {
	return q.Label()
}

// Start returns the first instant of the quarter in UTC.
func (q Quarter) Start() time.Time {
	return time.Date(q.Year, time.Month((q.Q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the quarter in UTC.
func (q Quarter) End() time.Time {
	return q.Start().AddDate(0, 3, -1)
}

// Compare orders quarters chronologically.
func (q Quarter) Compare(other Quarter) int {
	switch {
	case q.Year < other.Year:
		return -1
	case q.Year > other.Year:
		return 1
	case q.Q < other.Q:
		return -1
	case q.Q > other.Q:
		return 1
	default:
		return 0
	}
}

// Before reports whether q is strictly earlier than other.
func (q Quarter) Before(other Quarter) bool {
	return q.Compare(other) < 0
}

// Valid reports whether the quarter number is within range.
func (q Quarter) Valid() bool {
	return q.Q >= 1 && q.Q <= 4 && q.Year > 0
}

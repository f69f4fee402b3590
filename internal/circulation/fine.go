// internal/circulation/fine.go
package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Day returns the calendar date of t in loc, as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b. Both are
// expected to be dates as returned by Day.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Fine returns max(0, days late) times perDay for a copy due on due and
// returned on returned.
func Fine(due, returned time.Time, perDay decimal.Decimal) decimal.Decimal {
	days := DaysBetween(due, returned)
	if days <= 0 {
		return decimal.Zero
	}
	return perDay.Mul(decimal.NewFromInt(int64(days)))
}

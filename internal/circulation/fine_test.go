// internal/circulation/fine_test.go
package circulation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFineExample(t *testing.T) {
	rate := decimal.RequireFromString("0.50")
	fine := Fine(date(2024, 1, 10), date(2024, 1, 15), rate)
	assert.True(t, fine.Equal(decimal.RequireFromString("2.50")), fine.String())
}

func TestFineIsZeroOnOrBeforeDueDate(t *testing.T) {
	rate := decimal.NewFromInt(1)
	assert.True(t, Fine(date(2024, 1, 10), date(2024, 1, 10), rate).IsZero())
	assert.True(t, Fine(date(2024, 1, 10), date(2024, 1, 2), rate).IsZero())
}

func TestFineProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		due := date(2024, 1, 1).AddDate(0, 0, rapid.IntRange(0, 730).Draw(t, "due"))
		delay := rapid.IntRange(-60, 400).Draw(t, "delay")
		cents := rapid.Int64Range(0, 10000).Draw(t, "cents")
		rate := decimal.New(cents, -2)

		got := Fine(due, due.AddDate(0, 0, delay), rate)

		want := decimal.Zero
		if delay > 0 {
			want = rate.Mul(decimal.NewFromInt(int64(delay)))
		}
		if !got.Equal(want) {
			t.Fatalf("Fine(delay=%d, rate=%s) = %s, want %s", delay, rate, got, want)
		}
	})
}

func TestDayUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	instant := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, date(2024, 3, 9), Day(instant, time.UTC))
	assert.Equal(t, date(2024, 3, 10), Day(instant, tokyo))
}

func TestDaysBetweenIgnoresTimeOfDayAndZone(t *testing.T) {
	east := time.FixedZone("UTC-5", -5*60*60)
	due := date(2024, 1, 10).In(east)
	assert.Equal(t, 5, DaysBetween(due, date(2024, 1, 15)))
}

func TestLoanTransitions(t *testing.T) {
	assert.True(t, LoanBorrowed.CanTransitionTo(LoanOverdue))
	assert.True(t, LoanBorrowed.CanTransitionTo(LoanReturned))
	assert.True(t, LoanOverdue.CanTransitionTo(LoanLost))
	assert.False(t, LoanReturned.CanTransitionTo(LoanBorrowed))
	assert.False(t, LoanLost.CanTransitionTo(LoanReturned))
	assert.False(t, LoanOverdue.CanTransitionTo(LoanBorrowed))
}

func TestReservationTransitions(t *testing.T) {
	assert.True(t, ReservationActive.CanTransitionTo(ReservationFulfilled))
	assert.True(t, ReservationActive.CanTransitionTo(ReservationCancelled))
	assert.True(t, ReservationActive.CanTransitionTo(ReservationExpired))
	assert.False(t, ReservationExpired.CanTransitionTo(ReservationActive))
	assert.False(t, ReservationCancelled.CanTransitionTo(ReservationCancelled))
}

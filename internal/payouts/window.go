package payouts

import (
	"time"

	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// DateLayout is the wire format of payout dates.
const DateLayout = "2006-01-02"

// Window is the lesson period settled by one payout date: the Friday a week
// before the payout date at 00:00 up to, but excluding, the payout date at
// 00:00, both in the payout timezone.
type Window struct {
	PayoutDate time.Time
	Start      time.Time
	End        time.Time
}

// PeriodEnd is the last instant inside the window, as stored on payouts.
func (w Window) PeriodEnd() time.Time {
	return w.End.Add(-time.Millisecond)
}

// WindowFor validates date and returns its lesson window. Only the calendar
// fields of date are used, so "2025-03-14" parsed in UTC and a Friday-morning
// clock reading in loc name the same payout.
func WindowFor(date time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if day.Weekday() != time.Friday {
		return Window{}, pkgerrors.New(pkgerrors.CodeInvalidPayoutDate, "payout date must be a friday").
			WithDetails(map[string]any{
				"date":    day.Format(DateLayout),
				"weekday": day.Weekday().String(),
			})
	}
	return Window{
		PayoutDate: CalendarDay(day),
		Start:      time.Date(y, m, d-7, 0, 0, 0, 0, loc).UTC(),
		End:        day.UTC(),
	}, nil
}

// CalendarDay is the UTC midnight carrying t's calendar date, the form payout
// dates are stored in.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a YYYY-MM-DD payout date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "date must use YYYY-MM-DD")
	}
	return t, nil
}

package queue

import (
	"fmt"
	"strings"
	"time"
)

// Schedule determines when a periodic task runs next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule time.Duration

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(time.Duration(s))
}

func (s intervalSchedule) String() string {
	return "every " + time.Duration(s).String()
}

type dailySchedule struct {
	hour, minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily %02d:%02d", s.hour, s.minute)
}

// EveryInterval runs at a fixed interval from the previous run.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule(d)
}

// DailyAt runs once a day at hour:minute in the location of the scheduler clock.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// ParseSchedule reads the form produced by Schedule.String: "every 30m" or
// "daily 09:00". A bare duration such as "30m" is an interval.
func ParseSchedule(s string) (Schedule, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	kind, arg, found := strings.Cut(s, " ")
	if !found {
		kind, arg = "every", s
	}
	arg = strings.TrimSpace(arg)

	switch kind {
	case "every":
		d, err := time.ParseDuration(arg)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
		}
		return EveryInterval(d), nil
	case "daily":
		t, err := time.Parse("15:04", arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
		}
		return DailyAt(t.Hour(), t.Minute()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
	}
}

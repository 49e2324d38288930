package credits

import (
	"time"
)

// PlanInterval is the billing cadence of a plan, mirrored here so the reset
// policy stays a pure function with no dependency on the billing module.
type PlanInterval string

const (
	IntervalMonthly   PlanInterval = "monthly"
	IntervalQuarterly PlanInterval = "quarterly"
	IntervalSemester  PlanInterval = "semester"
	IntervalYearly    PlanInterval = "yearly"
	IntervalLifetime  PlanInterval = "lifetime"
)

// ShouldReset reports whether a new credit cycle is due. Lifetime plans
// refresh every calendar month like monthly ones; longer intervals refresh
// when enough whole calendar months have elapsed. Unrecognized intervals
// fall back to the monthly cadence.
func ShouldReset(interval PlanInterval, lastReset *time.Time, now time.Time) bool {
	if lastReset == nil {
		return true
	}

	switch interval {
	case IntervalQuarterly:
		return monthsBetween(*lastReset, now) >= 3
	case IntervalSemester:
		return monthsBetween(*lastReset, now) >= 6
	case IntervalYearly:
		return monthsBetween(*lastReset, now) >= 12
	case IntervalMonthly, IntervalLifetime:
		return calendarMonthChanged(*lastReset, now)
	default:
		return calendarMonthChanged(*lastReset, now)
	}
}

// calendarMonthChanged reports whether now falls in a different calendar
// month than then.
func calendarMonthChanged(then, now time.Time) bool {
	return then.Year() != now.Year() || then.Month() != now.Month()
}

// monthsBetween returns the calendar-month distance from then to now,
// ignoring day-of-month. Negative when now precedes then.
func monthsBetween(then, now time.Time) int {
	return (now.Year()-then.Year())*12 + int(now.Month()) - int(then.Month())
}

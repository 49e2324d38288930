package credits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestShouldReset_NeverReset(t *testing.T) {
	assert.True(t, ShouldReset(IntervalMonthly, nil, date(2025, time.January, 1)))
	assert.True(t, ShouldReset(IntervalYearly, nil, date(2025, time.January, 1)))
}

func TestShouldReset_Monthly(t *testing.T) {
	tests := []struct {
		name      string
		lastReset *time.Time
		now       time.Time
		want      bool
	}{
		{"same month", datePtr(2025, time.January, 1), date(2025, time.January, 31), false},
		{"next month", datePtr(2025, time.January, 31), date(2025, time.February, 1), true},
		{"year boundary", datePtr(2024, time.December, 15), date(2025, time.January, 2), true},
		{"same month next year", datePtr(2024, time.March, 10), date(2025, time.March, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReset(IntervalMonthly, tt.lastReset, tt.now))
		})
	}
}

func TestShouldReset_LifetimeFollowsMonthlyCadence(t *testing.T) {
	assert.False(t, ShouldReset(IntervalLifetime, datePtr(2025, time.May, 1), date(2025, time.May, 28)))
	assert.True(t, ShouldReset(IntervalLifetime, datePtr(2025, time.May, 1), date(2025, time.June, 1)))
}

func TestShouldReset_Quarterly(t *testing.T) {
	lastReset := datePtr(2025, time.January, 15)

	// Two calendar months elapsed: not yet due.
	assert.False(t, ShouldReset(IntervalQuarterly, lastReset, date(2025, time.March, 1)))
	// Three calendar months elapsed: due.
	assert.True(t, ShouldReset(IntervalQuarterly, lastReset, date(2025, time.April, 15)))
	assert.True(t, ShouldReset(IntervalQuarterly, lastReset, date(2025, time.April, 1)))
}

func TestShouldReset_Semester(t *testing.T) {
	lastReset := datePtr(2025, time.January, 15)

	assert.False(t, ShouldReset(IntervalSemester, lastReset, date(2025, time.June, 30)))
	assert.True(t, ShouldReset(IntervalSemester, lastReset, date(2025, time.July, 1)))
}

func TestShouldReset_Yearly(t *testing.T) {
	lastReset := datePtr(2025, time.March, 1)

	assert.False(t, ShouldReset(IntervalYearly, lastReset, date(2026, time.February, 28)))
	assert.True(t, ShouldReset(IntervalYearly, lastReset, date(2026, time.March, 1)))
}

func TestShouldReset_UnknownIntervalDefaultsToMonthly(t *testing.T) {
	assert.False(t, ShouldReset(PlanInterval("weekly"), datePtr(2025, time.April, 1), date(2025, time.April, 30)))
	assert.True(t, ShouldReset(PlanInterval("weekly"), datePtr(2025, time.April, 1), date(2025, time.May, 1)))
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 0, monthsBetween(date(2025, time.January, 1), date(2025, time.January, 31)))
	assert.Equal(t, 2, monthsBetween(date(2025, time.January, 15), date(2025, time.March, 1)))
	assert.Equal(t, 12, monthsBetween(date(2024, time.June, 1), date(2025, time.June, 1)))
	assert.Equal(t, -1, monthsBetween(date(2025, time.February, 1), date(2025, time.January, 1)))
}

package savings

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-15 is a Monday, 2024-01-13 a Saturday
var (
	monday   = time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)
	saturday = time.Date(2024, 1, 13, 17, 30, 0, 0, time.UTC)
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		day      time.Time
		expected DayClass
	}{
		{monday, Weekday},
		{monday.AddDate(0, 0, 1), Weekday},
		{monday.AddDate(0, 0, 4), Weekday},
		{saturday, Weekend},
		{saturday.AddDate(0, 0, 1), Weekend},
	}

	for _, tt := range tests {
		t.Run(tt.day.Weekday().String(), func(t *testing.T) {
			if got := ClassOf(tt.day); got != tt.expected {
				t.Errorf("ClassOf(%s) = %s, want %s", tt.day.Weekday(), got, tt.expected)
			}
		})
	}
}

func TestTargetCountFor(t *testing.T) {
	assert.Equal(t, 10, TargetCountFor(Weekday))
	assert.Equal(t, 4, TargetCountFor(Weekend))
}

func TestIsDateValid(t *testing.T) {
	candidate := time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC)
	midnight := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		previous []Event
		expected bool
	}{
		{"no previous sessions", nil, true},
		{"session same day", []Event{{Start: midnight.Add(18 * time.Hour), End: midnight.Add(19 * time.Hour)}}, false},
		{"session at midnight", []Event{{Start: midnight, End: midnight.Add(time.Hour)}}, false},
		{"session at next midnight", []Event{{Start: midnight.AddDate(0, 0, 1), End: midnight.AddDate(0, 0, 1).Add(time.Hour)}}, false},
		{"session day before", []Event{{Start: midnight.Add(-time.Minute), End: midnight.Add(time.Hour)}}, true},
		{"session two days later", []Event{{Start: midnight.AddDate(0, 0, 2), End: midnight.AddDate(0, 0, 2).Add(time.Hour)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDateValid(candidate, tt.previous); got != tt.expected {
				t.Errorf("IsDateValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCandidateDays(t *testing.T) {
	var days []time.Time
	for day := range CandidateDays(monday) {
		days = append(days, day)
		if len(days) == 3 {
			break
		}
	}

	require.Len(t, days, 3)
	assert.Equal(t, monday.AddDate(0, 0, -1), days[0])
	assert.Equal(t, monday.AddDate(0, 0, -2), days[1])
	assert.Equal(t, monday.AddDate(0, 0, -3), days[2])
}

func TestSelectComparisonDates_Weekday(t *testing.T) {
	event := Event{Start: monday, End: monday.Add(2 * time.Hour)}

	windows, err := SelectComparisonDates(event, nil, 0)
	require.NoError(t, err)
	require.Len(t, windows, 10)

	// Friday 12th is the most recent weekday before Monday 15th
	assert.Equal(t, time.Date(2024, 1, 12, 16, 0, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC), windows[9].Start)

	for _, w := range windows {
		assert.Equal(t, Weekday, ClassOf(w.Start), "window %v is not a weekday", w.Start)
		assert.Equal(t, event.Duration(), w.Duration())
		assert.True(t, w.Start.Before(event.Start))
	}
}

func TestSelectComparisonDates_Weekend(t *testing.T) {
	event := Event{Start: saturday, End: saturday.Add(time.Hour)}

	windows, err := SelectComparisonDates(event, nil, 0)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	expected := []time.Time{
		time.Date(2024, 1, 7, 17, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 6, 17, 30, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 17, 30, 0, 0, time.UTC),
		time.Date(2023, 12, 30, 17, 30, 0, 0, time.UTC),
	}
	for i, w := range windows {
		assert.Equal(t, expected[i], w.Start)
		assert.Equal(t, Weekend, ClassOf(w.Start))
		assert.Equal(t, time.Hour, w.Duration())
	}
}

func TestSelectComparisonDates_SkipsPreviousSessionDays(t *testing.T) {
	event := Event{Start: monday, End: monday.Add(time.Hour)}
	previous := []Event{
		{Start: time.Date(2024, 1, 12, 17, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 12, 18, 0, 0, 0, time.UTC)},
		{Start: time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)},
	}

	windows, err := SelectComparisonDates(event, previous, 0)
	require.NoError(t, err)
	require.Len(t, windows, 10)

	for _, w := range windows {
		for _, p := range previous {
			y1, m1, d1 := w.Start.Date()
			y2, m2, d2 := p.Start.Date()
			assert.False(t, y1 == y2 && m1 == m2 && d1 == d2, "window %v shares a day with previous session %v", w.Start, p.Start)
		}
	}
	assert.Equal(t, time.Date(2024, 1, 11, 16, 0, 0, 0, time.UTC), windows[0].Start)
}

func TestSelectComparisonDates_InsufficientHistory(t *testing.T) {
	event := Event{Start: saturday, End: saturday.Add(time.Hour)}

	windows, err := SelectComparisonDates(event, nil, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
	// Only Sunday 7th and Saturday 6th fall within a week
	assert.Len(t, windows, 2)
}

func TestSelectComparisonDates_CapReachedExactly(t *testing.T) {
	event := Event{Start: saturday, End: saturday.Add(time.Hour)}

	// The fourth weekend day before Saturday 13th is Saturday 30th, 14 days back
	windows, err := SelectComparisonDates(event, nil, 14)
	require.NoError(t, err)
	assert.Len(t, windows, 4)
}

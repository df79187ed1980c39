package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveEpiWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want EpiWeek
	}{
		{"first Sunday starts week 1", date(2019, time.January, 6), EpiWeek{2019, 1}},
		{"Saturday after first Sunday", date(2019, time.January, 12), EpiWeek{2019, 1}},
		{"second week", date(2019, time.January, 13), EpiWeek{2019, 2}},
		{"before first Sunday belongs to prior year", date(2019, time.January, 5), EpiWeek{2018, 52}},
		{"new year's day before first Sunday", date(2020, time.January, 4), EpiWeek{2019, 52}},
		{"year starting on Sunday", date(2017, time.January, 1), EpiWeek{2017, 1}},
		{"week 53 at year end", date(2023, time.December, 31), EpiWeek{2023, 53}},
		{"week 53 spilling into January", date(2024, time.January, 6), EpiWeek{2023, 53}},
		{"next first Sunday", date(2024, time.January, 7), EpiWeek{2024, 1}},
		{"mid year", date(2021, time.July, 10), EpiWeek{2021, 27}},
		{"time of day ignored", time.Date(2019, time.January, 6, 23, 59, 0, 0, time.UTC), EpiWeek{2019, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveEpiWeek(tc.in))
		})
	}
}

func TestResolveEpiWeek_WeekRange(t *testing.T) {
	for d := date(2014, time.December, 1); d.Before(date(2026, time.February, 1)); d = d.AddDate(0, 0, 1) {
		w := ResolveEpiWeek(d)
		require.GreaterOrEqual(t, w.Week, 1, d.String())
		require.LessOrEqual(t, w.Week, MaxEpiWeek, d.String())
	}
}

func TestResolveEpiWeek_ConsecutiveSundays(t *testing.T) {
	prev := ResolveEpiWeek(firstSunday(2014))
	require.Equal(t, EpiWeek{2014, 1}, prev)

	for d := firstSunday(2014).AddDate(0, 0, 7); d.Before(date(2027, time.January, 1)); d = d.AddDate(0, 0, 7) {
		w := ResolveEpiWeek(d)
		if w.Year == prev.Year {
			require.Equal(t, prev.Week+1, w.Week, d.String())
		} else {
			require.Equal(t, prev.Year+1, w.Year, d.String())
			require.Equal(t, 1, w.Week, d.String())
		}
		prev = w
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2019-01-12", date(2019, time.January, 12)},
		{"01/12/2019", date(2019, time.January, 12)},
		{"2019/01/12", date(2019, time.January, 12)},
		{"25/12/2019", date(2019, time.December, 25)},
		{"2020-01-04T00:00:00.000", date(2020, time.January, 4)},
		{"1/4/2020", date(2020, time.January, 4)},
		{"  2019-03-02 ", date(2019, time.March, 2)},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		for _, s := range []string{"", "not a date", "2019-13-45", "13/45/2019"} {
			_, err := ParseDate(s)
			assert.Error(t, err, s)
		}
	})
}

func TestResolveDateString(t *testing.T) {
	d, w, ok := ResolveDateString("2019-01-19")
	require.True(t, ok)
	assert.Equal(t, date(2019, time.January, 19), d)
	assert.Equal(t, EpiWeek{2019, 2}, w)

	_, _, ok = ResolveDateString("week two")
	assert.False(t, ok)
}

func TestShiftLegacyWeek(t *testing.T) {
	assert.Equal(t, EpiWeek{2019, 9}, ShiftLegacyWeek(EpiWeek{2019, 10}))
	assert.Equal(t, EpiWeek{2019, 52}, ShiftLegacyWeek(EpiWeek{2019, 53}))
	assert.Equal(t, EpiWeek{2019, 1}, ShiftLegacyWeek(EpiWeek{2019, 1}))
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("08:05:09")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 5, Second: 9}, tod)
	assert.Equal(t, "08:05:09", tod.String())
	assert.Equal(t, 8*3600+5*60+9, tod.SecondsOfDay())

	for _, bad := range []string{"", "8:00:00", "08:00", "24:00:00", "23:60:00", "23:59:60", "ab:cd:ef", "08:00:00Z"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayOn(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	date := time.Date(2026, 3, 2, 17, 45, 12, 999, loc)
	got := TimeOfDay{Hour: 8}.On(date)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, loc), got)
}

func TestDaysMask(t *testing.T) {
	assert.True(t, ValidDaysMask("1010101"))
	assert.False(t, ValidDaysMask("101010"))
	assert.False(t, ValidDaysMask("1010102"))

	assert.Equal(t, 0, WeekdayIndex(time.Monday))
	assert.Equal(t, 6, WeekdayIndex(time.Sunday))

	s := RelaySchedule{DaysOfWeek: "1000001"}
	assert.True(t, s.ActiveOn(time.Monday))
	assert.False(t, s.ActiveOn(time.Tuesday))
	assert.True(t, s.ActiveOn(time.Sunday))
	assert.False(t, RelaySchedule{DaysOfWeek: "1"}.ActiveOn(time.Monday))
}

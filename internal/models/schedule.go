package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DaysInWeek is the length of a day-of-week mask.
const DaysInWeek = 7

// AllDays is the mask used when a schedule does not name its days.
const AllDays = "1111111"

var (
	startTimePattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
	daysMaskPattern  = regexp.MustCompile(`^[01]{7}$`)
)

// RelaySchedule switches a relay on for DurationMinutes starting at StartTime
// on every day whose bit is set in DaysOfWeek (index 0 = Monday).
type RelaySchedule struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	RelayID         uint      `gorm:"not null;index" json:"relayId"`
	ScheduleName    string    `gorm:"size:128" json:"scheduleName"`
	StartTime       string    `gorm:"size:8;not null" json:"startTime"`
	DurationMinutes int       `gorm:"not null" json:"durationMinutes"`
	DaysOfWeek      string    `gorm:"size:7;not null" json:"daysOfWeek"`
	IsActive        bool      `gorm:"not null" json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Relay           *Relay    `gorm:"foreignKey:RelayID" json:"relay,omitempty"`
}

// TimeOfDay is a date-agnostic wall clock time.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// ParseTimeOfDay parses an HH:MM:SS string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !startTimePattern.MatchString(s) {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: must be HH:MM:SS", s)
	}
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[3:5])
	sec, _ := strconv.Atoi(s[6:8])
	if h > 23 || m > 59 || sec > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m, Second: sec}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// On returns the instant of t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, t.Hour, t.Minute, t.Second, 0, date.Location())
}

// SecondsOfDay returns the offset of t from midnight.
func (t TimeOfDay) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// ValidDaysMask reports whether mask is seven binary characters.
func ValidDaysMask(mask string) bool {
	return daysMaskPattern.MatchString(mask)
}

// WeekdayIndex maps a time.Weekday onto the mask index, Monday = 0.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % DaysInWeek
}

// ActiveOn reports whether the schedule's mask covers weekday d.
func (s RelaySchedule) ActiveOn(d time.Weekday) bool {
	if len(s.DaysOfWeek) != DaysInWeek {
		return false
	}
	return s.DaysOfWeek[WeekdayIndex(d)] == '1'
}

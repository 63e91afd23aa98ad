package dialog

import (
	"fmt"
	"strings"
	"time"
)

// Canonical layouts used for persisted answers.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses the canonical HH:MM form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Parser turns free-text answers into dates and times. Implementations
// report failure with ok=false; parse errors are never fatal.
type Parser interface {
	ParseDate(input string) (time.Time, bool)
	ParseTime(input string) (TimeOfDay, bool)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2/1/2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var timeLayouts = []string{
	"15:04",
	"15.04",
	"3:04PM",
	"3:04 PM",
	"3:04pm",
	"3:04 pm",
	"3PM",
	"3 PM",
	"3pm",
	"3 pm",
}

// RelativeDays resolves locale words such as "today" to a day offset.
type RelativeDays interface {
	RelativeDay(input string) (int, bool)
}

// LayoutParser parses dates and times by trying a fixed list of layouts.
type LayoutParser struct {
	// Location interprets dates; defaults to time.Local.
	Location *time.Location
	// Now supplies the current time for relative days; defaults to time.Now.
	Now func() time.Time
	// Relative resolves locale-specific relative day words. Optional.
	Relative RelativeDays
}

func (p LayoutParser) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.Local
}

// ParseDate implements Parser. The result is midnight of the parsed day.
func (p LayoutParser) ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	loc := p.location()
	if p.Relative != nil {
		if offset, ok := p.Relative.RelativeDay(s); ok {
			now := time.Now
			if p.Now != nil {
				now = p.Now
			}
			y, m, d := now().In(loc).Date()
			return time.Date(y, m, d+offset, 0, 0, 0, 0, loc), true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime implements Parser.
func (p LayoutParser) ParseTime(input string) (TimeOfDay, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return TimeOfDay{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, true
		}
	}
	return TimeOfDay{}, false
}

package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrIncomplete is returned when a booking is assembled before every slot is filled.
var ErrIncomplete = errors.New("dialog: booking incomplete")

// Booking is the record collected by a completed booking dialog.
type Booking struct {
	EmployeeID string
	RoomID     int
	Date       time.Time
	TimeFrom   TimeOfDay
	TimeTo     TimeOfDay
}

// Assemble builds the booking from the answers stored in st. The state must
// have passed TimeTo; Confirm may still be pending. Assemble does not check
// the confirmation: a booking declined at Confirm still assembles, so use
// State.Booked to tell whether it was accepted.
func Assemble(st State) (Booking, error) {
	for _, slot := range []Slot{Room, EmployeeID, Date, TimeFrom, TimeTo} {
		if _, ok := st.Answers[slot]; !ok {
			return Booking{}, fmt.Errorf("%w: missing %s", ErrIncomplete, slot)
		}
	}

	room, err := strconv.Atoi(st.Answers[Room])
	if err != nil {
		return Booking{}, fmt.Errorf("dialog: room answer %q: %w", st.Answers[Room], err)
	}
	date, err := time.ParseInLocation(DateLayout, st.Answers[Date], time.UTC)
	if err != nil {
		return Booking{}, fmt.Errorf("dialog: date answer: %w", err)
	}
	from, err := ParseTimeOfDay(st.Answers[TimeFrom])
	if err != nil {
		return Booking{}, fmt.Errorf("dialog: time_from answer: %w", err)
	}
	to, err := ParseTimeOfDay(st.Answers[TimeTo])
	if err != nil {
		return Booking{}, fmt.Errorf("dialog: time_to answer: %w", err)
	}

	return Booking{
		EmployeeID: st.Answers[EmployeeID],
		RoomID:     room,
		Date:       date,
		TimeFrom:   from,
		TimeTo:     to,
	}, nil
}

package dialog

import "fmt"

// Slot identifies one piece of booking information collected by the dialog.
// Slots are totally ordered by their declaration order.
type Slot int

const (
	AcceptBooking Slot = iota
	Room
	EmployeeID
	Date
	TimeFrom
	TimeTo
	Confirm
	Done
)

var slotNames = [...]string{
	AcceptBooking: "accept_booking",
	Room:          "room",
	EmployeeID:    "employee_id",
	Date:          "date",
	TimeFrom:      "time_from",
	TimeTo:        "time_to",
	Confirm:       "confirm",
	Done:          "done",
}

// Valid reports whether s is one of the declared slots.
func (s Slot) Valid() bool {
	return s >= AcceptBooking && s <= Done
}

// String returns the stable slot name used in logs and persisted state.
func (s Slot) String() string {
	if !s.Valid() {
		return fmt.Sprintf("slot(%d)", int(s))
	}
	return slotNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Slot) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("dialog: invalid slot %d", int(s))
	}
	return []byte(slotNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Slot) UnmarshalText(text []byte) error {
	return s.parse(string(text))
}

// ParseSlot resolves a slot from its stable name.
func ParseSlot(name string) (Slot, error) {
	var s Slot
	err := s.parse(name)
	return s, err
}

func (s *Slot) parse(name string) error {
	for i, n := range slotNames {
		if n == name {
			*s = Slot(i)
			return nil
		}
	}
	return fmt.Errorf("dialog: unknown slot %q", name)
}

package dialog

import "fmt"

// Canonical answer values stored for the yes/no slots.
const (
	answerYes = "true"
	answerNo  = "false"
)

// State is the persisted position of one booking conversation. Answers hold
// canonical text values for the slots already filled.
type State struct {
	Current Slot            `json:"current"`
	Answers map[Slot]string `json:"answers,omitempty"`
}

// NewState returns a state positioned at the first slot.
func NewState() State {
	return State{Current: AcceptBooking, Answers: map[Slot]string{}}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{Current: s.Current, Answers: make(map[Slot]string, len(s.Answers))}
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	return out
}

// Answer returns the stored value for slot.
func (s State) Answer(slot Slot) (string, bool) {
	v, ok := s.Answers[slot]
	return v, ok
}

// Finished reports whether the dialog reached the terminal slot.
func (s State) Finished() bool {
	return s.Current == Done
}

// Booked reports whether the dialog finished with a confirmed booking.
func (s State) Booked() bool {
	return s.Finished() && s.Answers[Confirm] == answerYes
}

// Cancelled reports whether the dialog finished without a booking.
func (s State) Cancelled() bool {
	return s.Finished() && !s.Booked()
}

// Validate checks the persisted state against the slot order: every stored
// answer must belong to a slot before Current.
func (s State) Validate() error {
	if !s.Current.Valid() {
		return fmt.Errorf("dialog: invalid current slot %d", int(s.Current))
	}
	for slot := range s.Answers {
		if !slot.Valid() || slot == Done {
			return fmt.Errorf("dialog: invalid answer slot %d", int(slot))
		}
		if slot >= s.Current {
			return fmt.Errorf("dialog: answer for %s stored at %s", slot, s.Current)
		}
	}
	return nil
}

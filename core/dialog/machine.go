// Package dialog implements the meeting-room booking conversation as an
// explicit slot-filling state machine. It holds no state of its own: every
// turn takes the persisted State and the user's text and returns the next
// State plus the replies to send.
package dialog

import (
	"strconv"
	"strings"

	"github.com/m3rciful/roombot/core/message"
)

// Vocabulary supplies localized texts and answer tokens to the machine.
type Vocabulary interface {
	Text(id string, data ...map[string]any) string
	Yes() string
	No() string
	ParseYesNo(input string) (bool, bool)
	ParseRoom(input string) (int, bool)
	RoomLabels() []string
	RoomLabel(id int) string
}

// step describes how a slot is asked for and how its answer is accepted.
type step struct {
	prompt string
	retry  string
	yesNo  bool
	rooms  bool
	accept func(m *Machine, input string) (string, bool)
	next   func(value string) Slot
}

func nextSlot(s Slot) func(string) Slot {
	return func(string) Slot { return s }
}

var steps = map[Slot]step{
	AcceptBooking: {
		prompt: "accept.prompt",
		retry:  "accept.retry",
		yesNo:  true,
		accept: acceptYesNo,
		next: func(v string) Slot {
			if v == answerYes {
				return Room
			}
			return Done
		},
	},
	Room: {
		prompt: "room.prompt",
		retry:  "room.retry",
		rooms:  true,
		accept: func(m *Machine, input string) (string, bool) {
			id, ok := m.vocab.ParseRoom(input)
			if !ok {
				return "", false
			}
			return strconv.Itoa(id), true
		},
		next: nextSlot(EmployeeID),
	},
	EmployeeID: {
		prompt: "employee.prompt",
		retry:  "employee.retry",
		accept: func(_ *Machine, input string) (string, bool) {
			s := strings.TrimSpace(input)
			return s, s != ""
		},
		next: nextSlot(Date),
	},
	Date: {
		prompt: "date.prompt",
		retry:  "date.retry",
		accept: func(m *Machine, input string) (string, bool) {
			t, ok := m.parser.ParseDate(input)
			if !ok {
				return "", false
			}
			return t.Format(DateLayout), true
		},
		next: nextSlot(TimeFrom),
	},
	TimeFrom: {
		prompt: "time_from.prompt",
		retry:  "time_from.retry",
		accept: acceptTime,
		next:   nextSlot(TimeTo),
	},
	TimeTo: {
		prompt: "time_to.prompt",
		retry:  "time_to.retry",
		accept: acceptTime,
		next:   nextSlot(Confirm),
	},
	Confirm: {
		prompt: "confirm.prompt",
		retry:  "confirm.retry",
		yesNo:  true,
		accept: acceptYesNo,
		next:   nextSlot(Done),
	},
}

func acceptYesNo(m *Machine, input string) (string, bool) {
	yes, ok := m.vocab.ParseYesNo(input)
	if !ok {
		return "", false
	}
	if yes {
		return answerYes, true
	}
	return answerNo, true
}

func acceptTime(m *Machine, input string) (string, bool) {
	t, ok := m.parser.ParseTime(input)
	if !ok {
		return "", false
	}
	return t.String(), true
}

// Machine advances booking conversations one turn at a time.
type Machine struct {
	vocab  Vocabulary
	parser Parser
}

// NewMachine creates a machine using vocab for texts and parser for dates and times.
func NewMachine(vocab Vocabulary, parser Parser) *Machine {
	return &Machine{vocab: vocab, parser: parser}
}

// Begin starts a new conversation: the welcome text and the first question.
func (m *Machine) Begin() (State, []message.Message) {
	st := NewState()
	out := []message.Message{message.Text(m.vocab.Text("welcome"))}
	return st, append(out, m.enter(st)...)
}

// Prompt re-emits the question for the current slot. Done has no question.
func (m *Machine) Prompt(st State) []message.Message {
	if st.Finished() {
		return nil
	}
	return m.enter(st)
}

// Advance applies input to the current slot. Valid input stores the
// canonical answer and moves to the next slot; invalid input leaves the
// state untouched and re-asks. The returned state never aliases st.
func (m *Machine) Advance(st State, input string) (State, []message.Message) {
	if st.Finished() {
		return st.Clone(), nil
	}
	s, ok := steps[st.Current]
	if !ok {
		return st.Clone(), nil
	}

	value, valid := s.accept(m, input)
	if !valid {
		return st.Clone(), []message.Message{m.ask(s, s.retry)}
	}

	next := st.Clone()
	next.Answers[st.Current] = value
	next.Current = s.next(value)
	return next, m.enter(next)
}

// enter returns the messages emitted on arrival at st.Current.
func (m *Machine) enter(st State) []message.Message {
	switch st.Current {
	case Done:
		if st.Booked() {
			return []message.Message{message.Text(m.vocab.Text("booking.success"))}
		}
		return []message.Message{message.Text(m.vocab.Text("booking.cancelled"))}
	case Confirm:
		s := steps[Confirm]
		return []message.Message{m.Summary(st), m.ask(s, s.prompt)}
	}
	s, ok := steps[st.Current]
	if !ok {
		return nil
	}
	return []message.Message{m.ask(s, s.prompt)}
}

func (m *Machine) ask(s step, id string) message.Message {
	text := m.vocab.Text(id)
	switch {
	case s.yesNo:
		return message.WithChoices(text, m.vocab.Yes(), m.vocab.No())
	case s.rooms:
		return message.WithChoices(text, m.vocab.RoomLabels()...)
	}
	return message.Text(text)
}

// Summary renders the collected answers as a confirmation card.
func (m *Machine) Summary(st State) message.Message {
	title := m.vocab.Text("summary.title")
	b, err := Assemble(st)
	if err != nil {
		return message.NewCard(title)
	}
	return message.NewCard(title,
		message.Fact{Label: m.vocab.Text("summary.room"), Value: strconv.Itoa(b.RoomID)},
		message.Fact{Label: m.vocab.Text("summary.employee"), Value: b.EmployeeID},
		message.Fact{Label: m.vocab.Text("summary.date"), Value: b.Date.Format("02 Jan 2006")},
		message.Fact{Label: m.vocab.Text("summary.range"), Value: b.TimeFrom.String() + " - " + b.TimeTo.String()},
	)
}

package dialog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/roombot/core/locale"
	"github.com/m3rciful/roombot/core/message"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	loc, err := locale.Load("en")
	require.NoError(t, err)
	parser := LayoutParser{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC) },
		Relative: loc,
	}
	return NewMachine(loc, parser)
}

var happyPath = []string{"yes", "Room 2", "E123", "2024-05-01", "09:00", "10:00", "yes"}

func run(m *Machine, st State, inputs []string) (State, [][]message.Message) {
	var out [][]message.Message
	for _, in := range inputs {
		var msgs []message.Message
		st, msgs = m.Advance(st, in)
		out = append(out, msgs)
	}
	return st, out
}

func TestBeginAsksToBook(t *testing.T) {
	m := newTestMachine(t)
	st, msgs := m.Begin()

	require.Equal(t, AcceptBooking, st.Current)
	require.Empty(t, st.Answers)
	require.Len(t, msgs, 2)
	require.Equal(t, "Welcome to the meeting room booking assistant", msgs[0].Text)
	require.Equal(t, "Would you like to book a room?", msgs[1].Text)
	require.Equal(t, []string{"yes", "no"}, msgs[1].Choices)
}

func TestHappyPathBooksRoom(t *testing.T) {
	m := newTestMachine(t)
	st := NewState()

	transitions := 0
	for _, in := range happyPath {
		before := st.Current
		st, _ = m.Advance(st, in)
		if st.Current != before {
			transitions++
		}
	}
	require.Equal(t, 7, transitions)
	require.Equal(t, Done, st.Current)
	require.True(t, st.Booked())
	require.False(t, st.Cancelled())

	b, err := Assemble(st)
	require.NoError(t, err)
	require.Equal(t, Booking{
		EmployeeID: "E123",
		RoomID:     2,
		Date:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		TimeFrom:   TimeOfDay{Hour: 9},
		TimeTo:     TimeOfDay{Hour: 10},
	}, b)
}

func TestHappyPathMessages(t *testing.T) {
	m := newTestMachine(t)
	_, out := run(m, NewState(), happyPath)

	require.Equal(t, "Please choose the room to book", out[0][0].Text)
	require.Equal(t, []string{"Room 1", "Room 2", "Room 3", "Room 4"}, out[0][0].Choices)
	require.Equal(t, "Please enter your employee ID", out[1][0].Text)
	require.Equal(t, "Which date would you like to book?", out[2][0].Text)
	require.Equal(t, "Start time?", out[3][0].Text)
	require.Equal(t, "End time?", out[4][0].Text)

	// Leaving TimeTo emits the summary card followed by the confirm question.
	require.Len(t, out[5], 2)
	card := out[5][0].Card
	require.NotNil(t, card)
	require.Equal(t, "Booking confirmation", card.Title)
	require.Equal(t, []message.Fact{
		{Label: "Room", Value: "2"},
		{Label: "Employee Id", Value: "E123"},
		{Label: "Date", Value: "01 May 2024"},
		{Label: "Time", Value: "09:00 - 10:00"},
	}, card.Facts)
	require.Equal(t, "Is this information correct?", out[5][1].Text)
	require.Equal(t, []string{"yes", "no"}, out[5][1].Choices)

	require.Equal(t, []message.Message{message.Text("Booking completed")}, out[6])
}

func TestDeclineAtStartCancels(t *testing.T) {
	m := newTestMachine(t)
	st, msgs := m.Advance(NewState(), "no")

	require.Equal(t, Done, st.Current)
	require.True(t, st.Cancelled())
	require.Equal(t, []message.Message{message.Text("Booking cancelled")}, msgs)

	_, err := Assemble(st)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestDeclineAtConfirmCancels(t *testing.T) {
	m := newTestMachine(t)
	inputs := append(append([]string(nil), happyPath[:6]...), "no")
	st, out := run(m, NewState(), inputs)

	require.Equal(t, Done, st.Current)
	require.True(t, st.Cancelled())
	require.Equal(t, []message.Message{message.Text("Booking cancelled")}, out[6])

	// the collected answers still assemble; only Booked tells them apart
	b, err := Assemble(st)
	require.NoError(t, err)
	require.Equal(t, "E123", b.EmployeeID)
	require.False(t, st.Booked())
}

func TestInvalidInputKeepsState(t *testing.T) {
	m := newTestMachine(t)

	tests := []struct {
		name  string
		slot  Slot
		input string
		retry string
	}{
		{"accept garbage", AcceptBooking, "maybe", "Please answer yes or no"},
		{"accept wrong case", AcceptBooking, "Yes", "Please answer yes or no"},
		{"room unknown", Room, "Room 9", "Please choose again"},
		{"employee blank", EmployeeID, "   ", "The employee ID is empty, please enter it again"},
		{"date garbage", Date, "next blursday", "Please enter a valid date"},
		{"time from garbage", TimeFrom, "soon", "Please enter a valid time"},
		{"time to garbage", TimeTo, "25:99", "Please enter a valid time"},
		{"confirm garbage", Confirm, "sure", "Please answer yes or no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := run(m, NewState(), happyPath[:int(tt.slot)])
			require.Equal(t, tt.slot, st.Current)
			before := st.Clone()

			next, msgs := m.Advance(st, tt.input)
			require.Equal(t, before, next)
			require.Equal(t, before, st)
			require.Len(t, msgs, 1)
			require.Equal(t, tt.retry, msgs[0].Text)
		})
	}
}

func TestRetryKeepsChoices(t *testing.T) {
	m := newTestMachine(t)
	st, _ := m.Advance(NewState(), "yes")

	_, msgs := m.Advance(st, "the big one")
	require.Equal(t, []string{"Room 1", "Room 2", "Room 3", "Room 4"}, msgs[0].Choices)
}

func TestDoneIsNoop(t *testing.T) {
	m := newTestMachine(t)
	st, _ := run(m, NewState(), happyPath)

	next, msgs := m.Advance(st, "yes")
	require.Equal(t, st, next)
	require.Nil(t, msgs)
	require.Nil(t, m.Prompt(next))
}

func TestAdvanceDoesNotAliasInput(t *testing.T) {
	m := newTestMachine(t)
	st := NewState()
	next, _ := m.Advance(st, "yes")

	next.Answers[Room] = "4"
	require.NotContains(t, st.Answers, Room)
	require.NotContains(t, st.Answers, AcceptBooking)
}

func TestResumeAfterRoundTrip(t *testing.T) {
	m := newTestMachine(t)

	for cut := 0; cut <= len(happyPath); cut++ {
		st, _ := run(m, NewState(), happyPath[:cut])

		data, err := json.Marshal(st)
		require.NoError(t, err)
		var restored State
		require.NoError(t, json.Unmarshal(data, &restored))
		require.NoError(t, restored.Validate())

		wantState, wantMsgs := run(m, st, happyPath[cut:])
		gotState, gotMsgs := run(m, restored, happyPath[cut:])
		require.Equal(t, wantState, gotState, "cut=%d", cut)
		require.Equal(t, wantMsgs, gotMsgs, "cut=%d", cut)
	}
}

func TestStateJSONUsesSlotNames(t *testing.T) {
	m := newTestMachine(t)
	st, _ := run(m, NewState(), happyPath[:3])

	data, err := json.Marshal(st)
	require.NoError(t, err)
	require.JSONEq(t, `{"current":"date","answers":{"accept_booking":"true","room":"2","employee_id":"E123"}}`, string(data))
}

func TestPromptReasksCurrentSlot(t *testing.T) {
	m := newTestMachine(t)
	st, _ := run(m, NewState(), happyPath[:6])

	msgs := m.Prompt(st)
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].IsCard())
	require.Equal(t, "Is this information correct?", msgs[1].Text)
}

func TestRelativeDate(t *testing.T) {
	m := newTestMachine(t)
	st, _ := run(m, NewState(), []string{"yes", "Room 1", "E1", "tomorrow"})
	require.Equal(t, "2024-05-01", st.Answers[Date])
}

func TestValidateRejectsFutureAnswers(t *testing.T) {
	st := State{Current: Room, Answers: map[Slot]string{AcceptBooking: "true", Date: "2024-05-01"}}
	require.Error(t, st.Validate())

	st = State{Current: Slot(42)}
	require.Error(t, st.Validate())
}

package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLayoutParserDates(t *testing.T) {
	p := LayoutParser{Location: time.UTC}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{
		"2024-05-01",
		"2024-5-1",
		"01.05.2024",
		"1.5.2024",
		"01/05/2024",
		"1 May 2024",
		"01 May 2024",
		"May 1 2024",
		"May 1, 2024",
		"1/5/2024",
		" 2024-05-01 ",
	} {
		got, ok := p.ParseDate(in)
		require.True(t, ok, in)
		require.True(t, want.Equal(got), "%s: %v", in, got)
	}

	for _, in := range []string{"", "tomorrow", "2024-13-01", "32.01.2024"} {
		_, ok := p.ParseDate(in)
		require.False(t, ok, in)
	}
}

func TestLayoutParserTimes(t *testing.T) {
	p := LayoutParser{}
	tests := map[string]TimeOfDay{
		"09:00":   {Hour: 9},
		"9:30":    {Hour: 9, Minute: 30},
		"17.45":   {Hour: 17, Minute: 45},
		"3:15PM":  {Hour: 15, Minute: 15},
		"3:15 pm": {Hour: 15, Minute: 15},
		"9AM":     {Hour: 9},
		"11 pm":   {Hour: 23},
	}
	for in, want := range tests {
		got, ok := p.ParseTime(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "noon", "24:00", "9"} {
		_, ok := p.ParseTime(in)
		require.False(t, ok, in)
	}
}

func TestTimeOfDayFormatting(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	require.Equal(t, "07:05", tod.String())
	require.Equal(t, 425, tod.Minutes())

	_, err = ParseTimeOfDay("7")
	require.Error(t, err)
}

func TestSlotText(t *testing.T) {
	for s := AcceptBooking; s <= Done; s++ {
		text, err := s.MarshalText()
		require.NoError(t, err)
		parsed, err := ParseSlot(string(text))
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}

	_, err := Slot(99).MarshalText()
	require.Error(t, err)
	_, err = ParseSlot("lunch")
	require.Error(t, err)
	require.Equal(t, "slot(99)", Slot(99).String())
}

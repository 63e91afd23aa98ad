package callbacks

import (
	"testing"

	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	key, payload := ParseCallbackData(&tele.Callback{Data: "\fbooking_cancel|c9x|extra"})
	require.Equal(t, "booking_cancel", key)
	require.Equal(t, "c9x|extra", payload)

	key, payload = ParseCallbackData(&tele.Callback{Unique: "booking_cancel", Data: "a|b"})
	require.Equal(t, "booking_cancel", key)
	require.Equal(t, "a|b", payload)

	key, payload = ParseCallbackData(&tele.Callback{Data: "\fnoop"})
	require.Equal(t, "noop", key)
	require.Empty(t, payload)

	key, payload = ParseCallbackData(nil)
	require.Empty(t, key)
	require.Empty(t, payload)
}

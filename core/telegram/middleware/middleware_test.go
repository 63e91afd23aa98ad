package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func newBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "test", Offline: true})
	require.NoError(t, err)
	return b
}

func messageFrom(b *tele.Bot, updateID int, userID int64, text string) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func TestRateLimitPerUser(t *testing.T) {
	b := newBot(t)
	limited := 0
	handled := map[int64]int{}
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     2,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(c tele.Context) error {
		handled[c.Sender().ID]++
		return nil
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, h(messageFrom(b, i, 1, "hi")))
	}
	require.NoError(t, h(messageFrom(b, 10, 2, "hi")))

	require.Equal(t, 2, handled[1])
	require.Equal(t, 1, handled[2])
	require.Equal(t, 2, limited)
}

func TestRateLimitExcludesKinds(t *testing.T) {
	b := newBot(t)
	calls := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Skip:     func(kind string) bool { return kind == "message" },
	})
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(messageFrom(b, i, 1, "hi")))
	}
	require.Equal(t, 3, calls)
}

func TestAdminOnly(t *testing.T) {
	b := newBot(t)
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  42,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	allowed := 0
	h := mw(func(tele.Context) error { allowed++; return nil })

	require.NoError(t, h(messageFrom(b, 1, 42, "/stats")))
	require.NoError(t, h(messageFrom(b, 2, 7, "/stats")))
	require.Equal(t, 1, allowed)
	require.Equal(t, 1, rejected)

	require.False(t, IsAdmin(messageFrom(b, 3, 42, ""), 0))
}

func TestRecoverReturnsError(t *testing.T) {
	b := newBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(messageFrom(b, 1, 1, "x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	want := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return want })
	require.ErrorIs(t, h(messageFrom(b, 2, 1, "x")), want)
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	b := newBot(t)
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	require.NoError(t, h(messageFrom(b, 5, 9, "hello")))
	require.NotEmpty(t, rid)
}

func TestUpdateMetricsReportsStatus(t *testing.T) {
	b := newBot(t)
	var seen []string
	observe := func(kind, status string) { seen = append(seen, kind+"/"+status) }

	limited := RateLimitMiddleware(RateLimitOptions{Interval: time.Hour})
	h := UpdateMetricsMiddleware(observe)(limited(func(c tele.Context) error {
		if c.Text() == "fail" {
			return errors.New("boom")
		}
		return nil
	}))

	require.NoError(t, h(messageFrom(b, 1, 3, "hi")))
	require.NoError(t, h(messageFrom(b, 2, 3, "again")))
	require.Error(t, h(messageFrom(b, 3, 4, "fail")))
	require.Equal(t, []string{"message/ok", "message/limited", "message/fail"}, seen)

	require.NotNil(t, UpdateMetricsMiddleware(nil)(func(tele.Context) error { return nil }))
}

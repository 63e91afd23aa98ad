package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCountsByLabel(t *testing.T) {
	m := New()
	m.ObserveTurn(DialogBooking, "advanced", 5*time.Millisecond)
	m.ObserveTurn(DialogBooking, "reprompt", time.Millisecond)
	m.ObserveTurn(DialogFAQ, "answered", 20*time.Millisecond)
	m.Reprompt("date")
	m.Booking(BookingBooked)
	m.Booking(BookingBooked)
	m.Booking(BookingCancelled)
	m.Lookup(LookupNoMatch)
	m.SendFailed()
	m.Update("message", UpdateOK)
	m.Update("callback", UpdateOK)
	m.Update("message", UpdateLimited)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, map[string]int{UpdateOK: 2, UpdateLimited: 1}, snap.Updates)
	require.Equal(t, 3, snap.Turns)
	require.Equal(t, 1, snap.Reprompts)
	require.Equal(t, map[string]int{BookingBooked: 2, BookingCancelled: 1}, snap.Bookings)
	require.Equal(t, map[string]int{LookupNoMatch: 1}, snap.Lookups)
	require.Equal(t, 1, snap.SendFails)

	require.Equal(t, float64(1), testutil.ToFloat64(m.RepromptsTotal.WithLabelValues("date")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn(DialogFAQ, "answered", time.Second)
	m.Reprompt("room")
	m.Booking(BookingBooked)
	m.Lookup(LookupError)
	m.SendFailed()
	m.Update("message", UpdateOK)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Zero(t, snap.Turns)
}

func TestServerExposesMetrics(t *testing.T) {
	m := New()
	m.Booking(BookingBooked)

	srv := NewServer("127.0.0.1:0", m)
	require.NoError(t, srv.Start())
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `roombot_bookings_total{result="booked"} 1`)

	health, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

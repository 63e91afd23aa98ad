package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/roombot/core/dialog"
	"github.com/m3rciful/roombot/core/faq"
	"github.com/m3rciful/roombot/core/locale"
	"github.com/m3rciful/roombot/core/metrics"
	"github.com/m3rciful/roombot/core/session"
)

const chatKey = "tg:1:1"

type fixture struct {
	svc     *Service
	store   *session.MemoryStore
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, kb faq.KnowledgeBase) fixture {
	t.Helper()
	loc, err := locale.Load("en")
	require.NoError(t, err)
	machine := dialog.NewMachine(loc, dialog.LayoutParser{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC) },
		Relative: loc,
	})
	store := session.NewMemoryStore(16, time.Hour)
	m := metrics.New()

	var responder *faq.Responder
	if kb != nil {
		responder = faq.NewResponder(kb, loc)
	}
	svc, err := New(Options{
		Store:   store,
		Machine: machine,
		Vocab:   loc,
		FAQ:     responder,
		Metrics: m,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	return fixture{svc: svc, store: store, metrics: m}
}

func staticKB(t *testing.T) *faq.StaticKB {
	t.Helper()
	kb, err := faq.NewStaticKB([]faq.Entry{
		{ID: 1, Questions: []string{"parking"}, Answer: "Level B2", Prompts: []faq.Prompt{{QnAID: 2, DisplayText: "Fees", DisplayOrder: 1}}},
		{ID: 2, Questions: []string{"parking fees"}, Answer: "Free for staff"},
	})
	require.NoError(t, err)
	return kb
}

func (f fixture) send(t *testing.T, texts ...string) Reply {
	t.Helper()
	var reply Reply
	for _, text := range texts {
		var err error
		reply, err = f.svc.Handle(context.Background(), chatKey, text)
		require.NoError(t, err)
	}
	return reply
}

func (f fixture) record(t *testing.T) session.Record {
	t.Helper()
	rec, err := f.store.Load(context.Background(), chatKey)
	require.NoError(t, err)
	return rec
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestFirstMessageStartsBooking(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.send(t, "hello")

	require.Equal(t, OutcomeStarted, reply.Outcome)
	require.NotEmpty(t, reply.SessionID)
	require.Len(t, reply.Messages, 2)
	require.Equal(t, []string{"yes", "no"}, reply.Messages[1].Choices)

	rec := f.record(t)
	require.Equal(t, session.ModeBooking, rec.Mode)
	require.Equal(t, dialog.AcceptBooking, rec.Booking.Current)
	require.Equal(t, reply.SessionID, rec.ID)
}

func TestBookingCompletesAndResets(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "hi", "yes", "Room 2", "E123", "2024-05-01", "09:00")

	reply := f.send(t, "10:00")
	require.Equal(t, OutcomeAdvanced, reply.Outcome)
	require.True(t, reply.Messages[0].IsCard())

	reply = f.send(t, "yes")
	require.Equal(t, OutcomeBooked, reply.Outcome)
	require.Equal(t, session.ModeIdle, f.record(t).Mode)

	snap, err := f.metrics.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 1, snap.Bookings[metrics.BookingBooked])
	require.Equal(t, 8, snap.Turns)
}

func TestInvalidAnswerReprompts(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "hi", "yes")

	reply := f.send(t, "Room 9")
	require.Equal(t, OutcomeReprompt, reply.Outcome)
	require.Equal(t, dialog.Room, f.record(t).Booking.Current)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RepromptsTotal.WithLabelValues(dialog.Room.String())))
}

func TestDecliningEndsBooking(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "hi")

	reply := f.send(t, "no")
	require.Equal(t, OutcomeCancelled, reply.Outcome)
	require.Equal(t, session.ModeIdle, f.record(t).Mode)
}

func TestStartBookingResumesPendingQuestion(t *testing.T) {
	f := newFixture(t, nil)
	first := f.send(t, "hi", "yes")

	reply, err := f.svc.StartBooking(context.Background(), chatKey)
	require.NoError(t, err)
	require.Equal(t, OutcomeResumed, reply.Outcome)
	require.Equal(t, first.SessionID, reply.SessionID)
	require.Len(t, reply.Messages, 1)
	require.Equal(t, "Please choose the room to book", reply.Messages[0].Text)
}

func TestCancelDeletesConversation(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "hi", "yes")

	reply, err := f.svc.Cancel(context.Background(), chatKey)
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, reply.Outcome)
	require.Empty(t, reply.SessionID)
	require.Equal(t, "Conversation cancelled", reply.Messages[0].Text)

	_, err = f.store.Load(context.Background(), chatKey)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestCancelBookingChecksSessionID(t *testing.T) {
	f := newFixture(t, nil)
	started := f.send(t, "hi")

	stale, err := f.svc.CancelBooking(context.Background(), chatKey, "old-id")
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, stale.Outcome)
	require.Equal(t, session.ModeBooking, f.record(t).Mode)

	done, err := f.svc.CancelBooking(context.Background(), chatKey, started.SessionID)
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, done.Outcome)
	require.Equal(t, "Booking cancelled", done.Messages[0].Text)
	require.Equal(t, session.ModeIdle, f.record(t).Mode)

	again, err := f.svc.CancelBooking(context.Background(), chatKey, started.SessionID)
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, again.Outcome)
}

func TestFAQKeywordSwitchesService(t *testing.T) {
	f := newFixture(t, staticKB(t))
	f.send(t, "hi", "yes")

	reply := f.send(t, "faq")
	require.Equal(t, OutcomeSwitched, reply.Outcome)
	require.Equal(t, "Go ahead and ask your question", reply.Messages[0].Text)
	require.Equal(t, session.ModeFAQ, f.record(t).Mode)

	reply = f.send(t, "parking")
	require.Equal(t, faq.OutcomeFollowUp, reply.Outcome)
	require.Equal(t, []string{"Fees"}, reply.Messages[0].Choices)
	require.Equal(t, 1, f.record(t).FAQ.PreviousQnAID)

	reply = f.send(t, "fees")
	require.Equal(t, faq.OutcomeAnswered, reply.Outcome)
	require.Equal(t, "Free for staff", reply.Messages[0].Text)
	require.Nil(t, f.record(t).FAQ)

	reply = f.send(t, "weather")
	require.Equal(t, faq.OutcomeNoMatch, reply.Outcome)
	require.Equal(t, session.ModeFAQ, f.record(t).Mode)

	snap, err := f.metrics.Snapshot()
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		metrics.LookupFollowUp: 1,
		metrics.LookupAnswered: 1,
		metrics.LookupNoMatch:  1,
	}, snap.Lookups)
}

func TestFAQUnavailableWithoutKnowledgeBase(t *testing.T) {
	f := newFixture(t, nil)
	require.False(t, f.svc.FAQEnabled())

	reply, err := f.svc.StartFAQ(context.Background(), chatKey)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnavailable, reply.Outcome)
	require.Equal(t, session.ModeIdle, f.record(t).Mode)
}

type failingKB struct{}

func (failingKB) Query(context.Context, string, *faq.State) (faq.Result, error) {
	return faq.Result{}, errors.New("kb down")
}

func TestFAQLookupErrorKeepsState(t *testing.T) {
	f := newFixture(t, failingKB{})
	_, err := f.svc.StartFAQ(context.Background(), chatKey)
	require.NoError(t, err)
	before := f.record(t)

	_, err = f.svc.Handle(context.Background(), chatKey, "parking")
	require.ErrorContains(t, err, "kb down")
	require.Equal(t, before, f.record(t))
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LookupsTotal.WithLabelValues(metrics.LookupError)))
}

func TestConcurrentTurnsAreSerialized(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "hi")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Handle(context.Background(), chatKey, "Room 9")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec := f.record(t)
	require.Equal(t, dialog.AcceptBooking, rec.Booking.Current)
	require.Equal(t, float64(8), testutil.ToFloat64(f.metrics.RepromptsTotal.WithLabelValues(dialog.AcceptBooking.String())))
}

type failingStore struct{ session.Store }

func (failingStore) Save(context.Context, string, session.Record) error {
	return errors.New("disk full")
}

func TestSaveFailureReturnsError(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.store = failingStore{Store: f.store}

	reply, err := f.svc.Handle(context.Background(), chatKey, "hi")
	require.ErrorContains(t, err, "disk full")
	require.Empty(t, reply.Messages)
}

// corruptStore serves a record written under an older slot schema.
type corruptStore struct{ session.Store }

func (corruptStore) Load(context.Context, string) (session.Record, error) {
	return session.Decode([]byte(`{"mode":"booking","booking":{"current":"room_v2"}}`))
}

func TestUndecodableRecordStartsOver(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.store = corruptStore{Store: f.store}
	ctx := context.Background()

	reply, err := f.svc.Handle(ctx, chatKey, "hi")
	require.NoError(t, err)
	require.Equal(t, OutcomeStarted, reply.Outcome)
	require.Equal(t, session.ModeBooking, f.record(t).Mode)

	reply, err = f.svc.StartBooking(ctx, chatKey)
	require.NoError(t, err)
	require.Equal(t, OutcomeStarted, reply.Outcome)

	reply, err = f.svc.Cancel(ctx, chatKey)
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, reply.Outcome)
	_, err = f.store.Load(ctx, chatKey)
	require.ErrorIs(t, err, session.ErrNotFound)
}

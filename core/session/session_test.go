package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/roombot/core/dialog"
	"github.com/m3rciful/roombot/core/faq"
)

func bookingRecord() Record {
	rec := NewRecord()
	rec.Mode = ModeBooking
	rec.Booking = &dialog.State{
		Current: dialog.EmployeeID,
		Answers: map[dialog.Slot]string{dialog.AcceptBooking: "true", dialog.Room: "3"},
	}
	return rec
}

func TestRecordCodecRoundTrip(t *testing.T) {
	rec := bookingRecord()
	rec.UpdatedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	data, err := Encode(rec)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	faqRec := NewRecord()
	faqRec.Mode = ModeFAQ
	faqRec.FAQ = &faq.State{PreviousQnAID: 9, PreviousQuery: "parking"}
	data, err = Encode(faqRec)
	require.NoError(t, err)
	got, err = Decode(data)
	require.NoError(t, err)
	require.Equal(t, faqRec.FAQ, got.FAQ)
}

func TestRecordValidate(t *testing.T) {
	require.Error(t, Record{Mode: ModeBooking}.Validate())
	require.Error(t, Record{Mode: "lunch"}.Validate())
	require.Error(t, Record{Mode: ModeBooking, Booking: &dialog.State{Current: dialog.Slot(77)}}.Validate())
	require.NoError(t, Record{Mode: ModeFAQ}.Validate())

	_, err := Decode([]byte(`{"mode":"booking"}`))
	require.ErrorIs(t, err, ErrCorrupt)
	_, err = Decode([]byte(`not json`))
	require.ErrorIs(t, err, ErrCorrupt)
	_, err = Decode([]byte(`{"mode":"booking","booking":{"current":"room_v2"}}`))
	require.ErrorIs(t, err, ErrCorrupt)

	rec, err := Decode([]byte(`{"id":"x"}`))
	require.NoError(t, err)
	require.Equal(t, ModeIdle, rec.Mode)
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := bookingRecord()
	rec.FAQ = &faq.State{PreviousQnAID: 1}
	cp := rec.Clone()

	cp.Booking.Answers[dialog.EmployeeID] = "E9"
	cp.FAQ.PreviousQnAID = 2
	require.NotContains(t, rec.Booking.Answers, dialog.EmployeeID)
	require.Equal(t, 1, rec.FAQ.PreviousQnAID)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2, 0)

	_, err := s.Load(ctx, "1")
	require.ErrorIs(t, err, ErrNotFound)

	rec := bookingRecord()
	require.NoError(t, s.Save(ctx, "1", rec))

	// Mutating the caller's copy does not leak into the store.
	rec.Booking.Answers[dialog.Room] = "4"
	got, err := s.Load(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "3", got.Booking.Answers[dialog.Room])

	require.NoError(t, s.Save(ctx, "2", NewRecord()))
	require.NoError(t, s.Save(ctx, "3", NewRecord()))
	require.Equal(t, 2, s.Len())
	_, err = s.Load(ctx, "1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "3"))
	_, err = s.Load(ctx, "3")
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, s.Save(ctx, "4", Record{Mode: ModeBooking}))
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0, 20*time.Millisecond)
	require.NoError(t, s.Save(ctx, "k", NewRecord()))

	require.Eventually(t, func() bool {
		_, err := s.Load(ctx, "k")
		return errors.Is(err, ErrNotFound)
	}, time.Second, 10*time.Millisecond)
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context, string) (Record, error) { return Record{}, f.err }
func (f failingStore) Save(context.Context, string, Record) error   { return f.err }
func (f failingStore) Delete(context.Context, string) error         { return f.err }

func TestLoadOrNewAndPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10, 0)

	rec, err := LoadOrNew(ctx, s, "42")
	require.NoError(t, err)
	require.Equal(t, ModeIdle, rec.Mode)
	require.NotEmpty(t, rec.ID)

	rec.Mode = ModeFAQ
	saved, err := Put(ctx, s, "42", rec)
	require.NoError(t, err)
	require.False(t, saved.UpdatedAt.IsZero())

	again, err := LoadOrNew(ctx, s, "42")
	require.NoError(t, err)
	require.Equal(t, rec.ID, again.ID)
	require.Equal(t, ModeFAQ, again.Mode)

	corrupt := fmt.Errorf("%w: unknown slot", ErrCorrupt)
	fresh, err := LoadOrNew(ctx, failingStore{err: corrupt}, "42")
	require.NoError(t, err)
	require.Equal(t, ModeIdle, fresh.Mode)
	require.NotEqual(t, rec.ID, fresh.ID)

	boom := errors.New("down")
	_, err = LoadOrNew(ctx, failingStore{err: boom}, "42")
	require.ErrorIs(t, err, boom)
	_, err = Put(ctx, failingStore{err: boom}, "42", rec)
	require.ErrorIs(t, err, boom)
}

func TestLocksSerializePerKey(t *testing.T) {
	locks := NewLocks()
	ctx := context.Background()

	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(ctx, "chat")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxSeen)
	require.Zero(t, locks.Len())
}

func TestLocksIndependentKeysAndCancel(t *testing.T) {
	locks := NewLocks()
	ctx := context.Background()

	unlockA, err := locks.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, err := locks.Lock(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 2, locks.Len())

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(cctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA()
	unlockA()
	unlockB()
	require.Zero(t, locks.Len())
}

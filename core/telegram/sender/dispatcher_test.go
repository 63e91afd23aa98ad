package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/telegram/netutil"
)

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestEnqueueSequenceResumesAfterRetry(t *testing.T) {
	var (
		mu      sync.Mutex
		sent    []string
		flaky   = 1
		done    = make(chan struct{})
		failure error
	)
	record := func(name string) func() error {
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			if name == "card" && flaky > 0 {
				flaky--
				return dialErr()
			}
			sent = append(sent, name)
			if name == "confirm" {
				close(done)
			}
			return nil
		}
	}

	d := NewDispatcher(Options{
		Workers:      4,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		OnFailure:    func(_ context.Context, _ string, err error) { failure = err },
	})
	defer d.Close()

	require.NoError(t, d.EnqueueSequence(context.Background(), "send.turn", "sendMessage",
		[]func() error{record("prompt"), record("card"), record("confirm")}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sequence did not complete")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"prompt", "card", "confirm"}, sent)
	require.NoError(t, failure)
	require.Zero(t, d.ErrorCount())
}

func TestEnqueueSequenceReportsFailure(t *testing.T) {
	failed := make(chan error, 1)
	d := NewDispatcher(Options{
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		OnFailure:    func(_ context.Context, _ string, err error) { failed <- err },
	})

	boom := errors.New("chat not found")
	calls := 0
	require.NoError(t, d.EnqueueSequence(context.Background(), "send.turn", "sendMessage", []func() error{
		func() error { calls++; return nil },
		func() error { return boom },
	}))

	select {
	case err := <-failed:
		require.ErrorIs(t, err, boom)
		require.Contains(t, err.Error(), "step 2/2")
	case <-time.After(2 * time.Second):
		t.Fatal("failure not reported")
	}
	d.Close()
	require.Equal(t, 1, calls)
	require.Equal(t, uint64(1), d.ErrorCount())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()

	require.ErrorIs(t, d.Enqueue(context.Background(), "a", "b", func() error { return nil }), ErrQueueClosed)
	require.ErrorIs(t, d.EnqueueSequence(context.Background(), "a", "b", []func() error{func() error { return nil }}), ErrQueueClosed)
	require.NoError(t, d.EnqueueSequence(context.Background(), "a", "b", nil))
	require.Error(t, d.EnqueueSequence(context.Background(), "a", "b", []func() error{nil}))
}

func TestEnqueueQueueFull(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	defer func() {
		close(block)
		d.Close()
	}()

	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "a", "", func() error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "b", "", func() error { return nil }))
	require.ErrorIs(t, d.Enqueue(context.Background(), "c", "", func() error { return nil }), ErrQueueFull)
}

func TestJobsForOneChatKeepOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 16})
	defer d.Close()

	chat := logger.WithUpdateMeta(context.Background(), 1, 7, -1001234)
	other := logger.WithUpdateMeta(context.Background(), 2, 8, 43)

	var (
		mu    sync.Mutex
		order []string
	)
	note := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	release := make(chan struct{})
	otherDone := make(chan struct{})
	secondDone := make(chan struct{})
	require.NoError(t, d.Enqueue(chat, "turn1", "", func() error {
		<-release
		note("turn1")
		return nil
	}))
	require.NoError(t, d.Enqueue(chat, "turn2", "", func() error {
		note("turn2")
		close(secondDone)
		return nil
	}))
	require.NoError(t, d.Enqueue(other, "other", "", func() error {
		note("other")
		close(otherDone)
		return nil
	}))

	// another chat is not held up by the blocked one
	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("job for another chat did not run")
	}
	close(release)
	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second turn did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"other", "turn1", "turn2"}, order)
}

func TestRunSequenceStopsAtFirstError(t *testing.T) {
	var ran []int
	err := RunSequence([]func() error{
		func() error { ran = append(ran, 1); return nil },
		func() error { return errors.New("nope") },
		func() error { ran = append(ran, 3); return nil },
	})
	require.Error(t, err)
	require.Equal(t, []int{1}, ran)
}

func TestBackoffHonoursFloodWait(t *testing.T) {
	d := &Dispatcher{opts: Options{RetryBackoff: time.Second}}
	require.Equal(t, 2*time.Second, d.backoff(2, netutil.Failure{Retry: true}))
	require.Equal(t, 5*time.Second, d.backoff(1, netutil.Failure{Retry: true, After: 5 * time.Second}))
}

func TestDeadlineStopsRetries(t *testing.T) {
	failed := make(chan error, 1)
	d := NewDispatcher(Options{
		Workers:      1,
		MaxRetries:   5,
		RetryBackoff: time.Second,
		MaxDuration:  50 * time.Millisecond,
		OnFailure:    func(_ context.Context, _ string, err error) { failed <- err },
	})
	defer d.Close()

	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error { return dialErr() }))
	select {
	case err := <-failed:
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Contains(t, err.Error(), "connection refused")
	case <-time.After(2 * time.Second):
		t.Fatal("deadline not enforced")
	}
}

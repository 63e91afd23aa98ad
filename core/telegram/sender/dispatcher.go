// Package sender delivers outbound Telegram calls from a bounded worker pool.
// A job is either one call or an ordered batch of calls. Jobs are sharded by
// chat, so every job for one chat runs on the same worker in enqueue order.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	// QueueSize is the total capacity, split evenly across the workers.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// OnFailure is called once per job that exhausted its retries.
	OnFailure func(ctx context.Context, action string, err error)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
	steps    int
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
type Dispatcher struct {
	opts   Options
	shards []chan job
	next   atomic.Uint64 // round robin for jobs without a chat
	once   sync.Once

	closeMu sync.RWMutex
	closed  bool

	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts the workers. Zero options get defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, shards: make([]chan job, opts.Workers)}
	perShard := (opts.QueueSize + opts.Workers - 1) / opts.Workers
	d.wg.Add(opts.Workers)
	for i := range d.shards {
		d.shards[i] = make(chan job, perShard)
		go d.worker(d.shards[i])
	}
	return d
}

// Enqueue schedules run for asynchronous execution. run must be safe to
// repeat when retries are enabled.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	return d.submit(job{ctx: ctx, action: action, endpoint: endpoint, run: run, steps: 1})
}

// EnqueueSequence schedules steps to run in order as one job. A retry
// resumes from the first step that has not succeeded, so a delivered
// message is never sent twice.
func (d *Dispatcher) EnqueueSequence(ctx context.Context, action, endpoint string, steps []func() error) error {
	if len(steps) == 0 {
		return nil
	}
	for _, step := range steps {
		if step == nil {
			return errors.New("telegram sender: nil step")
		}
	}
	next := 0
	run := func() error {
		for next < len(steps) {
			if err := steps[next](); err != nil {
				return fmt.Errorf("step %d/%d: %w", next+1, len(steps), err)
			}
			next++
		}
		return nil
	}
	return d.submit(job{ctx: ctx, action: action, endpoint: endpoint, run: run, steps: len(steps)})
}

func (d *Dispatcher) submit(j job) error {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.shardFor(j.ctx) <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// RunSequence executes steps synchronously, in order, stopping at the first error.
func RunSequence(steps []func() error) error {
	for i, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("step %d/%d: %w", i+1, len(steps), err)
		}
	}
	return nil
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.closeMu.Lock()
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
		d.closeMu.Unlock()
		d.wg.Wait()
	})
}

// shardFor picks the queue for the chat carried by ctx. Jobs without a chat
// are spread round robin.
func (d *Dispatcher) shardFor(ctx context.Context) chan job {
	n := uint64(len(d.shards))
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		return d.shards[uint64(chatID)%n]
	}
	return d.shards[d.next.Add(1)%n]
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.handleJob(j)
	}
}

// backoff returns the wait before attempt+1: linear in the attempt number,
// stretched to the server's flood-control wait when one was given.
func (d *Dispatcher) backoff(attempt int, f netutil.Failure) time.Duration {
	delay := d.opts.RetryBackoff * time.Duration(attempt)
	if f.After > delay {
		delay = f.After
	}
	return delay
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadline, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	logger.Debug(ctx, "tg.sender", "send.start", jobAttrs(ctx, j)...)

	err := d.attempt(deadline, ctx, j, attempts, start)
	if err == nil {
		return
	}
	d.errs.Add(1)
	logSendFailure(ctx, j, err, attempts, time.Since(start))
	if d.opts.OnFailure != nil {
		d.opts.OnFailure(ctx, j.action, err)
	}
}

// attempt runs j until it succeeds, fails permanently, runs out of attempts
// or hits the job deadline.
func (d *Dispatcher) attempt(deadline, logCtx context.Context, j job, attempts int, start time.Time) error {
	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := deadline.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last: %v)", err, lastErr)
			}
			return err
		}

		lastErr = j.run()
		if lastErr == nil {
			logSendSuccess(logCtx, j, n, time.Since(start))
			return nil
		}

		f := netutil.Classify(lastErr)
		if !f.Retry || n == attempts {
			return lastErr
		}

		delay := d.backoff(n, f)
		logger.Debug(logCtx, "tg.sender", "send.retry.backoff",
			append(jobAttrs(logCtx, j),
				slog.Int("attempt", n),
				slog.String("error_kind", f.Kind),
				slog.Duration("delay", delay),
			)...,
		)
		timer := time.NewTimer(delay)
		select {
		case <-deadline.Done():
			timer.Stop()
			return fmt.Errorf("%w (last: %v)", deadline.Err(), lastErr)
		case <-timer.C:
		}
	}
	return lastErr
}

func jobAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if j.steps > 1 {
		attrs = append(attrs, slog.Int("messages", j.steps))
	}
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	return attrs
}

func logSendSuccess(ctx context.Context, j job, attempt int, elapsed time.Duration) {
	attrs := append(jobAttrs(ctx, j),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.RoundMS(elapsed)),
	)
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempt", attempt))
		logger.Info(ctx, "tg.sender", "send.retry.success", attrs...)
		return
	}
	logger.Debug(ctx, "tg.sender", "send.success", attrs...)
}

func logSendFailure(ctx context.Context, j job, err error, attempts int, elapsed time.Duration) {
	f := netutil.Classify(err)
	attrs := append(jobAttrs(ctx, j),
		slog.String("status", "fail"),
		slog.String("err", netutil.Redact(err)),
		slog.String("error_kind", f.Kind),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(elapsed)),
	)
	if f.Status != 0 {
		attrs = append(attrs, slog.Int("http_status", f.Status))
	}
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

// Package conversation runs one turn of a roombot conversation: it
// serializes turns per conversation key, loads the session record, hands the
// text to the booking machine or the FAQ responder and saves the result
// before any reply leaves the process.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/roombot/core/dialog"
	"github.com/m3rciful/roombot/core/faq"
	"github.com/m3rciful/roombot/core/locale"
	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/message"
	"github.com/m3rciful/roombot/core/metrics"
	"github.com/m3rciful/roombot/core/session"
)

// Turn outcomes reported in Reply.Outcome.
const (
	OutcomeStarted     = "started"
	OutcomeResumed     = "resumed"
	OutcomeAdvanced    = "advanced"
	OutcomeReprompt    = "reprompt"
	OutcomeBooked      = "booked"
	OutcomeCancelled   = "cancelled"
	OutcomeSwitched    = "switched"
	OutcomeUnavailable = "unavailable"
	OutcomeStale       = "stale"
)

// Vocabulary is the locale surface the service needs.
type Vocabulary interface {
	dialog.Vocabulary
	IsFAQKeyword(input string) bool
}

// Options wires a Service.
type Options struct {
	Store   session.Store
	Locks   *session.Locks
	Machine *dialog.Machine
	Vocab   Vocabulary
	// FAQ answers questions; nil disables the question service.
	FAQ     *faq.Responder
	Metrics *metrics.Metrics
	// Timeout bounds one turn including the lock wait; 0 disables it.
	Timeout time.Duration
}

// Reply is the outcome of one turn.
type Reply struct {
	// SessionID identifies the saved record; cancel buttons carry it.
	SessionID string
	Dialog    string
	Outcome   string
	Messages  []message.Message
}

// Service handles conversation turns.
type Service struct {
	store   session.Store
	locks   *session.Locks
	machine *dialog.Machine
	vocab   Vocabulary
	faq     *faq.Responder
	metrics *metrics.Metrics
	timeout time.Duration
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("conversation: nil store")
	}
	if opts.Machine == nil {
		return nil, errors.New("conversation: nil machine")
	}
	if opts.Vocab == nil {
		return nil, errors.New("conversation: nil vocabulary")
	}
	locks := opts.Locks
	if locks == nil {
		locks = session.NewLocks()
	}
	return &Service{
		store:   opts.Store,
		locks:   locks,
		machine: opts.Machine,
		vocab:   opts.Vocab,
		faq:     opts.FAQ,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
	}, nil
}

// FAQEnabled reports whether a knowledge base is configured.
func (s *Service) FAQEnabled() bool {
	return s.faq != nil
}

// turnFunc computes the next record from a private copy of the current one.
// A nil record deletes the conversation.
type turnFunc func(ctx context.Context, rec session.Record) (*session.Record, Reply, error)

func (s *Service) run(ctx context.Context, key string, fn turnFunc) (Reply, error) {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: wait for %s: %w", key, err)
	}
	defer unlock()

	rec, err := session.LoadOrNew(ctx, s.store, key)
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: load: %w", err)
	}

	next, reply, err := fn(ctx, rec.Clone())
	if err != nil {
		s.metrics.ObserveTurn(reply.Dialog, "fail", time.Since(start))
		return Reply{}, err
	}

	if next == nil {
		if err := s.store.Delete(ctx, key); err != nil {
			s.metrics.ObserveTurn(reply.Dialog, "fail", time.Since(start))
			return Reply{}, fmt.Errorf("conversation: delete: %w", err)
		}
	} else {
		saved, err := session.Put(ctx, s.store, key, *next)
		if err != nil {
			s.metrics.ObserveTurn(reply.Dialog, "fail", time.Since(start))
			return Reply{}, fmt.Errorf("conversation: save: %w", err)
		}
		reply.SessionID = saved.ID
	}

	s.metrics.ObserveTurn(reply.Dialog, reply.Outcome, time.Since(start))
	return reply, nil
}

// Handle processes one inbound text. The FAQ keyword switches to the
// question service from any mode; otherwise the text goes to the service
// owning the conversation, and an idle conversation starts a booking.
func (s *Service) Handle(ctx context.Context, key, text string) (Reply, error) {
	return s.run(ctx, key, func(ctx context.Context, rec session.Record) (*session.Record, Reply, error) {
		if s.vocab.IsFAQKeyword(text) {
			return s.enterFAQ(ctx, rec)
		}
		switch rec.Mode {
		case session.ModeBooking:
			return s.advance(ctx, rec, text)
		case session.ModeFAQ:
			return s.lookup(ctx, rec, text)
		default:
			return s.begin(ctx)
		}
	})
}

// StartBooking begins a booking, or re-asks the pending question when one
// is already in progress.
func (s *Service) StartBooking(ctx context.Context, key string) (Reply, error) {
	return s.run(ctx, key, func(ctx context.Context, rec session.Record) (*session.Record, Reply, error) {
		if rec.Mode == session.ModeBooking && !rec.Booking.Finished() {
			logger.LogEvent(ctx, logger.SVCBooking, slog.LevelDebug, "booking.resume",
				slog.String("session_id", rec.ID),
				slog.String("slot", rec.Booking.Current.String()),
			)
			return &rec, Reply{
				Dialog:   metrics.DialogBooking,
				Outcome:  OutcomeResumed,
				Messages: s.machine.Prompt(*rec.Booking),
			}, nil
		}
		return s.begin(ctx)
	})
}

// StartFAQ switches the conversation to the question service.
func (s *Service) StartFAQ(ctx context.Context, key string) (Reply, error) {
	return s.run(ctx, key, s.enterFAQ)
}

// Cancel drops whatever the conversation was doing.
func (s *Service) Cancel(ctx context.Context, key string) (Reply, error) {
	return s.run(ctx, key, func(ctx context.Context, rec session.Record) (*session.Record, Reply, error) {
		if rec.Mode == session.ModeBooking {
			s.metrics.Booking(metrics.BookingCancelled)
			logger.LogEvent(ctx, logger.SVCBooking, slog.LevelInfo, "booking.cancel",
				slog.String("outcome", OutcomeCancelled),
				slog.String("session_id", rec.ID),
				slog.String("slot", rec.Booking.Current.String()),
			)
		}
		return nil, Reply{
			Dialog:   metrics.DialogCommand,
			Outcome:  OutcomeCancelled,
			Messages: []message.Message{message.Text(s.vocab.Text(locale.MsgCancelDone))},
		}, nil
	})
}

// CancelBooking cancels the booking identified by sessionID. A button from
// an earlier or already finished booking yields OutcomeStale and no change.
func (s *Service) CancelBooking(ctx context.Context, key, sessionID string) (Reply, error) {
	return s.run(ctx, key, func(ctx context.Context, rec session.Record) (*session.Record, Reply, error) {
		if rec.Mode != session.ModeBooking || rec.ID != sessionID || sessionID == "" {
			return &rec, Reply{
				Dialog:   metrics.DialogBooking,
				Outcome:  OutcomeStale,
				Messages: []message.Message{message.Text(s.vocab.Text(locale.MsgBookingStale))},
			}, nil
		}
		s.metrics.Booking(metrics.BookingCancelled)
		logger.LogEvent(ctx, logger.SVCBooking, slog.LevelInfo, "booking.cancel",
			slog.String("outcome", OutcomeCancelled),
			slog.String("session_id", rec.ID),
			slog.String("slot", rec.Booking.Current.String()),
		)
		idle := session.NewRecord()
		return &idle, Reply{
			Dialog:   metrics.DialogBooking,
			Outcome:  OutcomeCancelled,
			Messages: []message.Message{message.Text(s.vocab.Text(locale.MsgBookingCancel))},
		}, nil
	})
}

func (s *Service) begin(ctx context.Context) (*session.Record, Reply, error) {
	st, msgs := s.machine.Begin()
	rec := session.NewRecord()
	rec.Mode = session.ModeBooking
	rec.Booking = &st
	logger.LogEvent(ctx, logger.SVCBooking, slog.LevelInfo, "booking.start",
		slog.String("outcome", OutcomeStarted),
		slog.String("session_id", rec.ID),
	)
	return &rec, Reply{Dialog: metrics.DialogBooking, Outcome: OutcomeStarted, Messages: msgs}, nil
}

func (s *Service) advance(ctx context.Context, rec session.Record, text string) (*session.Record, Reply, error) {
	prev := *rec.Booking
	next, msgs := s.machine.Advance(prev, text)
	reply := Reply{Dialog: metrics.DialogBooking, Outcome: OutcomeAdvanced, Messages: msgs}

	switch {
	case next.Finished():
		if next.Booked() {
			reply.Outcome = OutcomeBooked
			s.metrics.Booking(metrics.BookingBooked)
			s.logBooked(ctx, rec.ID, next)
		} else {
			reply.Outcome = OutcomeCancelled
			s.metrics.Booking(metrics.BookingCancelled)
			logger.LogEvent(ctx, logger.SVCBooking, slog.LevelInfo, "booking.cancel",
				slog.String("outcome", OutcomeCancelled),
				slog.String("session_id", rec.ID),
				slog.String("slot", prev.Current.String()),
			)
		}
		idle := session.NewRecord()
		return &idle, reply, nil

	case next.Current == prev.Current:
		reply.Outcome = OutcomeReprompt
		s.metrics.Reprompt(prev.Current.String())
		logger.LogEvent(ctx, logger.SVCBooking, slog.LevelDebug, "booking.reprompt",
			slog.String("outcome", OutcomeReprompt),
			slog.String("session_id", rec.ID),
			slog.String("slot", prev.Current.String()),
		)

	default:
		logger.LogEvent(ctx, logger.SVCBooking, slog.LevelDebug, "booking.advance",
			slog.String("outcome", OutcomeAdvanced),
			slog.String("session_id", rec.ID),
			slog.String("from_slot", prev.Current.String()),
			slog.String("to_slot", next.Current.String()),
		)
	}

	rec.Booking = &next
	return &rec, reply, nil
}

func (s *Service) logBooked(ctx context.Context, sessionID string, st dialog.State) {
	b, err := dialog.Assemble(st)
	if err != nil {
		logger.LogEvent(ctx, logger.SVCBooking, slog.LevelError, "booking.complete",
			slog.String("status", "fail"),
			slog.String("session_id", sessionID),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.LogEvent(ctx, logger.SVCBooking, slog.LevelInfo, "booking.complete",
		slog.String("outcome", OutcomeBooked),
		slog.String("session_id", sessionID),
		slog.Int("room_id", b.RoomID),
		slog.String("employee_id", logger.SanitizeLimit(b.EmployeeID, 64)),
		slog.String("booking_date", b.Date.Format(dialog.DateLayout)),
		slog.String("time_from", b.TimeFrom.String()),
		slog.String("time_to", b.TimeTo.String()),
	)
}

func (s *Service) enterFAQ(ctx context.Context, rec session.Record) (*session.Record, Reply, error) {
	if s.faq == nil {
		return &rec, Reply{
			Dialog:   metrics.DialogFAQ,
			Outcome:  OutcomeUnavailable,
			Messages: []message.Message{message.Text(s.vocab.Text(locale.MsgFAQOff))},
		}, nil
	}
	if rec.Mode == session.ModeBooking {
		logger.LogEvent(ctx, logger.SVCBooking, slog.LevelInfo, "booking.abandon",
			slog.String("outcome", OutcomeSwitched),
			slog.String("session_id", rec.ID),
			slog.String("slot", rec.Booking.Current.String()),
		)
	}
	next := session.NewRecord()
	next.Mode = session.ModeFAQ
	return &next, Reply{
		Dialog:   metrics.DialogFAQ,
		Outcome:  OutcomeSwitched,
		Messages: []message.Message{message.Text(s.vocab.Text(locale.MsgFAQPrompt))},
	}, nil
}

func (s *Service) lookup(ctx context.Context, rec session.Record, text string) (*session.Record, Reply, error) {
	if s.faq == nil {
		idle := session.NewRecord()
		return &idle, Reply{
			Dialog:   metrics.DialogFAQ,
			Outcome:  OutcomeUnavailable,
			Messages: []message.Message{message.Text(s.vocab.Text(locale.MsgFAQOff))},
		}, nil
	}

	start := time.Now()
	res, err := s.faq.Respond(ctx, text, rec.FAQ)
	if err != nil {
		s.metrics.Lookup(metrics.LookupError)
		logger.LogEvent(ctx, logger.SVCFAQ, slog.LevelError, "faq.lookup",
			slog.String("status", "fail"),
			slog.String("session_id", rec.ID),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, Reply{Dialog: metrics.DialogFAQ}, fmt.Errorf("conversation: %w", err)
	}

	s.metrics.Lookup(res.Outcome)
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("outcome", res.Outcome),
		slog.String("session_id", rec.ID),
		slog.Duration("duration", logger.Took(start)),
	}
	if res.Outcome != faq.OutcomeNoMatch {
		attrs = append(attrs, slog.Int("qna_id", res.QnAID), slog.Float64("score", res.Score))
	}
	if res.State != nil && len(res.Messages) > 0 {
		attrs = append(attrs, slog.Int("prompts", len(res.Messages[0].Choices)))
	}
	logger.LogEvent(ctx, logger.SVCFAQ, slog.LevelInfo, "faq.lookup", attrs...)

	rec.FAQ = res.State
	return &rec, Reply{Dialog: metrics.DialogFAQ, Outcome: res.Outcome, Messages: res.Messages}, nil
}

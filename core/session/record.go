// Package session persists per-conversation state between turns.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/m3rciful/roombot/core/dialog"
	"github.com/m3rciful/roombot/core/faq"
)

// ErrNotFound is returned by Store.Load when no record exists for the key.
var ErrNotFound = errors.New("session: not found")

// ErrCorrupt wraps Decode failures: the stored bytes exist but cannot be
// read back as a valid record.
var ErrCorrupt = errors.New("session: corrupt record")

// Mode tells which service owns the conversation.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeBooking Mode = "booking"
	ModeFAQ     Mode = "faq"
)

// Record is the persisted state of one conversation.
type Record struct {
	ID        string        `json:"id"`
	Mode      Mode          `json:"mode"`
	Booking   *dialog.State `json:"booking,omitempty"`
	FAQ       *faq.State    `json:"faq,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewRecord returns an idle record with a fresh id.
func NewRecord() Record {
	return Record{ID: xid.New().String(), Mode: ModeIdle}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.Booking != nil {
		st := r.Booking.Clone()
		out.Booking = &st
	}
	if r.FAQ != nil {
		f := *r.FAQ
		out.FAQ = &f
	}
	return out
}

// Validate checks that the mode and the nested states agree.
func (r Record) Validate() error {
	switch r.Mode {
	case ModeIdle:
	case ModeBooking:
		if r.Booking == nil {
			return fmt.Errorf("session: booking mode without booking state")
		}
		if err := r.Booking.Validate(); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	case ModeFAQ:
	default:
		return fmt.Errorf("session: unknown mode %q", r.Mode)
	}
	return nil
}

// Encode serializes the record for storage.
func Encode(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return data, nil
}

// Decode parses and validates a stored record. Failures wrap ErrCorrupt.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if r.Mode == "" {
		r.Mode = ModeIdle
	}
	if err := r.Validate(); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return r, nil
}

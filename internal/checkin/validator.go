// Package checkin validates scanned invitation codes at the door.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"event-invitations/internal/metrics"
	"event-invitations/internal/models"
	"event-invitations/internal/qr"
	"event-invitations/internal/storage"
)

// Outcome is the result of validating one code. Every outcome is an
// expected answer, not a failure.
type Outcome string

const (
	Success                   Outcome = "success"
	AlreadyCheckedIn          Outcome = "already_checked_in"
	AlreadyScannedThisSession Outcome = "already_scanned"
	InvalidCode               Outcome = "invalid_code"
	NoCodeDetected            Outcome = "no_code"
)

// Result describes a validation. Guest is nil for invalid codes.
type Result struct {
	Outcome    Outcome       `json:"outcome"`
	Message    string        `json:"message"`
	Identifier string        `json:"identifier,omitempty"`
	Guest      *models.Guest `json:"guest"`
	PartySize  int           `json:"party_size,omitempty"`
	ScannedAt  time.Time     `json:"scanned_at,omitempty"`
}

// Valid reports whether the guest was let in by this validation.
func (r Result) Valid() bool {
	return r.Outcome == Success
}

// Store is the part of the guest store the validator needs.
type Store interface {
	GuestByQRCode(ctx context.Context, code string) (*models.Guest, error)
	RecordCheckIn(ctx context.Context, guestID int64, identifier, location string, at time.Time) (bool, error)
}

// Validator moves guests from pending to present. It keeps the set of
// identifiers accepted during the current scanning session so repeated
// frames of the same code are answered without touching the store.
type Validator struct {
	store    Store
	location string
	log      zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewValidator creates a validator recording scans at location.
func NewValidator(store Store, location string, log zerolog.Logger) *Validator {
	return &Validator{
		store:    store,
		location: location,
		log:      log.With().Str("component", "CheckIn").Logger(),
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}
}

// Validate checks a raw scanned payload at the default location.
func (v *Validator) Validate(ctx context.Context, payload string) (Result, error) {
	return v.ValidateAt(ctx, payload, v.location)
}

// ValidateAt checks a raw scanned payload. An error is returned only when
// the store fails; all other answers are Results.
func (v *Validator) ValidateAt(ctx context.Context, payload, location string) (Result, error) {
	if location == "" {
		location = v.location
	}
	res, err := v.validate(ctx, payload, location)
	if err == nil {
		metrics.CheckIns.WithLabelValues(string(res.Outcome)).Inc()
		v.log.Info().
			Str("outcome", string(res.Outcome)).
			Str("identifier", res.Identifier).
			Str("location", location).
			Msg(res.Message)
	}
	return res, err
}

func (v *Validator) validate(ctx context.Context, payload, location string) (Result, error) {
	id, err := qr.Extract(payload)
	if err != nil {
		return Result{Outcome: InvalidCode, Message: "Invalid QR code"}, nil
	}

	if v.seenRecently(id) {
		return Result{
			Outcome:    AlreadyScannedThisSession,
			Identifier: id,
			Message:    "QR code already scanned",
		}, nil
	}

	guest, err := v.store.GuestByQRCode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: InvalidCode, Identifier: id, Message: "Invalid QR code"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up guest: %w", err)
	}

	if guest.Status == models.StatusPresent {
		return alreadyIn(id, guest), nil
	}

	at := v.now()
	recorded, err := v.store.RecordCheckIn(ctx, guest.ID, id, location, at)
	if err != nil {
		return Result{}, fmt.Errorf("failed to record check-in: %w", err)
	}
	if !recorded {
		// another scan of the same guest won the transition
		return alreadyIn(id, guest), nil
	}

	v.remember(id)
	guest.Status = models.StatusPresent
	guest.ScannedAt = at
	return Result{
		Outcome:    Success,
		Identifier: id,
		Guest:      guest,
		PartySize:  guest.PartySize(),
		ScannedAt:  at,
		Message:    fmt.Sprintf("Welcome %s!", guest.FullName()),
	}, nil
}

func alreadyIn(id string, guest *models.Guest) Result {
	return Result{
		Outcome:    AlreadyCheckedIn,
		Identifier: id,
		Guest:      guest,
		ScannedAt:  guest.ScannedAt,
		Message:    fmt.Sprintf("%s is already checked in", guest.FullName()),
	}
}

// Reset forgets the identifiers seen in the current session.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = make(map[string]struct{})
}

func (v *Validator) seenRecently(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[id]
	return ok
}

func (v *Validator) remember(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen[id] = struct{}{}
}

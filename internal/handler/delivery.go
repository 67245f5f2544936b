package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"event-invitations/internal/metrics"
	"event-invitations/internal/models"
)

var (
	ErrNoPhone      = errors.New("guest has no phone number")
	ErrNotGenerated = errors.New("invitation not generated yet")
)

// Sender delivers an image message to a phone number.
type Sender interface {
	SendImage(ctx context.Context, phoneNumber string, image []byte, mimetype, caption string) error
}

// DeliveryStore is the part of the store used when sending invitations.
type DeliveryStore interface {
	ListGuests(ctx context.Context, eventID int64) ([]models.Guest, error)
	MarkSent(ctx context.Context, guestID int64, at time.Time) error
}

// Delivery is the outcome of sending one invitation.
type Delivery struct {
	Guest models.Guest
	Err   error
}

type Dispatcher struct {
	sender Sender
	store  DeliveryStore
	log    zerolog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher sending through sender
func NewDispatcher(sender Sender, store DeliveryStore, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		store:  store,
		log:    log.With().Str("component", "Dispatcher").Logger(),
		now:    time.Now,
	}
}

// SendInvitation sends the rendered invitation of a guest and records
// the delivery time.
func (d *Dispatcher) SendInvitation(ctx context.Context, guest models.Guest, event models.Event) error {
	if guest.PhoneNumber == "" {
		return ErrNoPhone
	}
	if guest.InvitationPath == "" {
		return ErrNotGenerated
	}

	data, err := os.ReadFile(guest.InvitationPath)
	if err != nil {
		return fmt.Errorf("failed to read invitation: %w", err)
	}

	if err := d.sender.SendImage(ctx, guest.PhoneNumber, data, "image/jpeg", caption(guest, event)); err != nil {
		metrics.InvitationsSent.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to send invitation: %w", err)
	}
	metrics.InvitationsSent.WithLabelValues("success").Inc()

	if err := d.store.MarkSent(ctx, guest.ID, d.now()); err != nil {
		return fmt.Errorf("failed to mark invitation sent: %w", err)
	}
	return nil
}

// SendAll sends the invitations of every guest of an event that has one
// and was not sent yet. Failures are collected per guest.
func (d *Dispatcher) SendAll(ctx context.Context, event models.Event) ([]Delivery, error) {
	guests, err := d.store.ListGuests(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guests: %w", err)
	}

	var out []Delivery
	for _, guest := range guests {
		if !guest.SentAt.IsZero() {
			continue
		}
		if err := ctx.Err(); err != nil {
			out = append(out, Delivery{Guest: guest, Err: err})
			continue
		}
		err := d.SendInvitation(ctx, guest, event)
		if err != nil {
			d.log.Error().Err(err).Int64("guest_id", guest.ID).Msg("Failed to deliver invitation")
		}
		out = append(out, Delivery{Guest: guest, Err: err})
	}
	return out, nil
}

func caption(guest models.Guest, event models.Event) string {
	msg := fmt.Sprintf("Dear %s,\n\nYou are invited to *%s*.\n\nDate: %s %s\nLocation: %s",
		guest.FullName(), event.Name, event.Date, event.Time, event.Place)
	if guest.TableName != "" {
		msg += fmt.Sprintf("\nTable: %s", guest.TableName)
	}
	return msg + "\n\nPlease show the QR code on this invitation at the entrance."
}

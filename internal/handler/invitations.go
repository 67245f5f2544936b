package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"event-invitations/internal/models"
	"event-invitations/internal/render"
)

// InvitationStore is the part of the store used by a generation run.
type InvitationStore interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	ListGuests(ctx context.Context, eventID int64) ([]models.Guest, error)
	SetInvitation(ctx context.Context, guestID int64, identifier, invitationPath string) error
}

// Renderer renders a batch of invitations.
type Renderer interface {
	RenderBatch(ctx context.Context, jobs []render.Job) []render.BatchResult
}

// GenerationReport is the outcome of generating an event's invitations.
type GenerationReport struct {
	Event     models.Event
	Guests    map[int64]models.Guest
	Results   []render.BatchResult
	Succeeded int
	Failed    int
}

type Generator struct {
	store    InvitationStore
	renderer Renderer
	log      zerolog.Logger
}

// NewGenerator creates a generator rendering with renderer.
func NewGenerator(store InvitationStore, renderer Renderer, log zerolog.Logger) *Generator {
	return &Generator{
		store:    store,
		renderer: renderer,
		log:      log.With().Str("component", "Generator").Logger(),
	}
}

// Generate renders every guest of an event and stores the new
// identifiers. A guest whose render or update fails is reported and the
// run moves on.
func (g *Generator) Generate(ctx context.Context, eventID int64) (*GenerationReport, error) {
	event, err := g.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	guests, err := g.store.ListGuests(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guests: %w", err)
	}

	report := &GenerationReport{Event: *event, Guests: make(map[int64]models.Guest, len(guests))}
	jobs := make([]render.Job, 0, len(guests))
	for _, guest := range guests {
		report.Guests[guest.ID] = guest
		jobs = append(jobs, render.Job{Guest: guest, Event: *event})
	}

	g.log.Info().Int64("event_id", eventID).Int("guests", len(jobs)).Msg("Generating invitations")
	report.Results = g.renderer.RenderBatch(ctx, jobs)

	for i := range report.Results {
		r := &report.Results[i]
		if r.Err == nil {
			if err := g.store.SetInvitation(ctx, r.GuestID, r.Result.Identifier, r.Result.InvitationPath); err != nil {
				r.Err = fmt.Errorf("failed to store invitation: %w", err)
			}
		}
		if r.Err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
	}

	g.log.Info().
		Int64("event_id", eventID).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Generation finished")
	return report, nil
}

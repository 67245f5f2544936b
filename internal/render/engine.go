// Package render composes personalized invitations from a template
// bitmap, its layout and a guest.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"event-invitations/internal/layout"
	"event-invitations/internal/metrics"
	"event-invitations/internal/models"
	"event-invitations/internal/qr"
	"event-invitations/internal/viewport"
)

type Options struct {
	InvitationsDir string
	QRCodesDir     string
	JPEGQuality    int
	DPI            int
	// QRSize is the QR bitmap size when the layout has no QR slot.
	QRSize int
}

// Job is one invitation to render. Identifier may be empty, in which
// case a new one is issued.
type Job struct {
	Guest      models.Guest
	Event      models.Event
	Identifier string
}

// Result is what the caller persists on the guest record.
type Result struct {
	GuestID        int64
	Identifier     string
	Payload        string
	InvitationPath string
	QRCodePath     string
	// Regenerated is set when a new identifier replaced a stored one.
	Regenerated bool
}

// design is a loaded template with its optional layout. The image is
// shared between renders and never drawn on.
type design struct {
	template image.Image
	layout   *layout.Config
}

type Engine struct {
	opts      Options
	templates TemplateLoader
	fonts     *Fonts
	log       zerolog.Logger

	// NewIdentifier issues identifiers; replaced in tests.
	NewIdentifier func(guestID int64) string

	mu      sync.Mutex
	designs map[string]*design
}

// NewEngine creates an engine writing into the directories of opts.
func NewEngine(opts Options, templates TemplateLoader, fonts *Fonts, log zerolog.Logger) *Engine {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 95
	}
	if opts.QRSize <= 0 {
		opts.QRSize = 300
	}
	if templates == nil {
		templates = FileTemplates{}
	}
	return &Engine{
		opts:          opts,
		templates:     templates,
		fonts:         fonts,
		log:           log.With().Str("component", "Render").Logger(),
		NewIdentifier: qr.NewIdentifier,
		designs:       make(map[string]*design),
	}
}

// InvitationPath is where the invitation of a guest is written.
func (e *Engine) InvitationPath(guestID int64) string {
	return filepath.Join(e.opts.InvitationsDir, fmt.Sprintf("invitation_%d.jpg", guestID))
}

// QRCodePath is where the QR sub-image of a guest is written.
func (e *Engine) QRCodePath(guestID int64) string {
	return filepath.Join(e.opts.QRCodesDir, fmt.Sprintf("qr_%d.png", guestID))
}

// Render composes and writes the invitation and QR image of one guest.
// The same job with the same identifier always produces the same bytes.
func (e *Engine) Render(job Job) (*Result, error) {
	guest, event := job.Guest, job.Event

	d, err := e.design(event.TemplatePath)
	if err != nil {
		return nil, err
	}

	id := job.Identifier
	regenerated := false
	if id == "" {
		id = e.NewIdentifier(guest.ID)
		if guest.QRCode != "" && guest.QRCode != id {
			regenerated = true
			e.log.Info().
				Int64("guest_id", guest.ID).
				Str("previous", guest.QRCode).
				Str("identifier", id).
				Msg("Issuing new identifier, previous invitation code is no longer valid")
		}
	}
	payload := qr.Build(id, guest, event)

	code, err := e.qrImage(payload, d.layout)
	if err != nil {
		return nil, err
	}

	canvas := imaging.Clone(d.template)
	if d.layout != nil && len(d.layout.Elements) > 0 {
		canvas = e.applyLayout(canvas, d.layout, guest, event, code)
	} else {
		canvas = e.applyDefault(canvas, guest, event, code)
	}

	result := &Result{
		GuestID:        guest.ID,
		Identifier:     id,
		Payload:        payload,
		InvitationPath: e.InvitationPath(guest.ID),
		QRCodePath:     e.QRCodePath(guest.ID),
		Regenerated:    regenerated,
	}
	if err := writePNG(result.QRCodePath, code); err != nil {
		return nil, err
	}
	if err := writeJPEG(result.InvitationPath, canvas, e.opts.JPEGQuality, e.opts.DPI); err != nil {
		return nil, err
	}
	return result, nil
}

// qrImage renders the QR bitmap square at the larger side of the QR
// slot, or the default size without one, in the slot's colors.
func (e *Engine) qrImage(payload string, cfg *layout.Config) (image.Image, error) {
	size := e.opts.QRSize
	fill, background := layout.Black, layout.White
	if cfg != nil {
		if el, ok := cfg.QRElement(); ok {
			size = max(el.Width, el.Height, layout.MinQRSize)
			fill, background = el.QRFill, el.QRBackground
		}
	}

	img, err := qr.Image(payload, size, fill.Color(), background.Color())
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		img = imaging.Resize(img, size, size, imaging.NearestNeighbor)
	}
	return img, nil
}

// design loads and caches the template at path and its layout file.
// Unreadable templates become a blank canvas for this render only;
// missing or corrupt layouts become the built-in layout.
func (e *Engine) design(path string) (*design, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.designs[path]; ok {
		return d, nil
	}

	d := &design{}
	if path == "" {
		d.template = BlankCanvas()
		e.designs[path] = d
		return d, nil
	}

	img, err := e.templates.Load(path)
	switch {
	case err == nil:
		d.template = img
	case errors.Is(err, ErrTemplateUnreadable):
		// not cached, the template is tried again on the next render
		e.log.Warn().Err(err).Str("template", path).Msg("Template unreadable, using blank canvas")
		d.template = BlankCanvas()
		d.layout = e.loadLayout(path, d.template)
		return d, nil
	default:
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	d.layout = e.loadLayout(path, d.template)

	e.designs[path] = d
	return d, nil
}

// TemplateSize returns the dimensions the engine renders a template at,
// after orientation is applied.
func (e *Engine) TemplateSize(path string) (viewport.Size, error) {
	img, err := e.templates.Load(path)
	if err != nil {
		return viewport.Size{}, err
	}
	b := img.Bounds()
	return viewport.Size{W: b.Dx(), H: b.Dy()}, nil
}

// Invalidate drops the cached designs so that edited templates and
// layouts are read again.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.designs = make(map[string]*design)
}

func (e *Engine) loadLayout(templatePath string, template image.Image) *layout.Config {
	path := layout.ConfigPath(templatePath)
	cfg, err := layout.Load(path)
	switch {
	case errors.Is(err, layout.ErrNotFound):
		e.log.Debug().Str("layout", path).Msg("No layout file, using built-in layout")
		return nil
	case err != nil:
		e.log.Warn().Err(err).Str("layout", path).Msg("Layout unusable, using built-in layout")
		return nil
	}

	size := viewport.Size{W: template.Bounds().Dx(), H: template.Bounds().Dy()}
	if err := cfg.CheckTemplate(size); err != nil {
		e.log.Warn().Err(err).Str("layout", path).Msg("Template size changed since the layout was saved")
	}
	for _, w := range cfg.Inspect() {
		e.log.Warn().Str("layout", path).Str("element", w.Field.String()).Msg(w.Message)
	}
	e.log.Info().Str("layout", path).Int("elements", len(cfg.Elements)).Msg("Layout loaded")
	return cfg
}

// BatchResult is the outcome of one job of a batch.
type BatchResult struct {
	GuestID int64
	Result  *Result
	Err     error
}

func (r BatchResult) Success() bool {
	return r.Err == nil
}

// RenderBatch renders every job. A failing job is recorded and does not
// stop the others; jobs share nothing but the read-only designs, so
// their order does not matter. Jobs left when ctx is done fail with the
// context error.
func (e *Engine) RenderBatch(ctx context.Context, jobs []Job) []BatchResult {
	results := make([]BatchResult, len(jobs))
	for i, job := range jobs {
		results[i] = BatchResult{GuestID: job.Guest.ID}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Result, results[i].Err = e.renderSafe(job)

		if results[i].Err != nil {
			metrics.InvitationsRendered.WithLabelValues("failure").Inc()
			e.log.Error().Err(results[i].Err).Int64("guest_id", job.Guest.ID).Msg("Failed to render invitation")
		} else {
			metrics.InvitationsRendered.WithLabelValues("success").Inc()
		}
	}
	return results
}

func (e *Engine) renderSafe(job Job) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("render panicked: %v", r)
		}
	}()
	return e.Render(job)
}

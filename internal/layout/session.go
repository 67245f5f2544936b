package layout

import (
	"fmt"

	"event-invitations/internal/viewport"
)

// Session is an interactive editing session over one layout. Element
// positions are kept native; display rectangles are derived from the
// current view state and re-projected as a batch whenever it changes.
type Session struct {
	template viewport.Size
	cfg      Config
	view     viewport.ViewState
	display  []viewport.DisplayRect
	drift    error
}

// OpenSession starts editing cfg (nil for an empty layout) against a
// template of the given current dimensions shown in viewport. The view
// scale is always computed fresh; a scale saved in cfg is ignored.
func OpenSession(cfg *Config, template, view viewport.Size) *Session {
	s := &Session{
		template: template,
		view:     viewport.NewViewState(template, view),
	}
	if cfg != nil {
		s.drift = cfg.CheckTemplate(template)
		s.cfg = *cfg
		s.cfg.Elements = append([]Element(nil), cfg.Elements...)
	}
	s.cfg.TemplateWidth = template.W
	s.cfg.TemplateHeight = template.H
	s.reproject()
	return s
}

// Drift is non-nil when the layout was recorded for another template size.
func (s *Session) Drift() error {
	return s.drift
}

func (s *Session) View() viewport.ViewState {
	return s.view
}

// Elements returns a copy of the elements with native coordinates.
func (s *Session) Elements() []Element {
	return append([]Element(nil), s.cfg.Elements...)
}

// Display returns the display rectangles, index-aligned with Elements.
func (s *Session) Display() []viewport.DisplayRect {
	return append([]viewport.DisplayRect(nil), s.display...)
}

// Add places a new element for f at the template origin. Each field can
// only appear once.
func (s *Session) Add(f Field) (int, error) {
	for _, e := range s.cfg.Elements {
		if e.Field == f {
			return -1, fmt.Errorf("element %q already placed", f)
		}
	}
	e := NewElement(f)
	s.cfg.Elements = append(s.cfg.Elements, e)
	s.display = append(s.display, viewport.ToDisplay(e.Rect(), s.view.Scale()))
	return len(s.cfg.Elements) - 1, nil
}

// Remove deletes element i.
func (s *Session) Remove(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.cfg.Elements = append(s.cfg.Elements[:i], s.cfg.Elements[i+1:]...)
	s.display = append(s.display[:i], s.display[i+1:]...)
	return nil
}

// Move records a drag or resize done in display space.
func (s *Session) Move(i int, d viewport.DisplayRect) error {
	if err := s.check(i); err != nil {
		return err
	}
	r := viewport.ToNative(d, s.view.Scale())
	e := &s.cfg.Elements[i]
	e.X, e.Y, e.Width, e.Height = r.X, r.Y, r.W, r.H
	s.display[i] = d
	return nil
}

// SetRect sets native coordinates directly, as typed in a property panel.
func (s *Session) SetRect(i int, r viewport.Rect) error {
	if err := s.check(i); err != nil {
		return err
	}
	e := &s.cfg.Elements[i]
	e.X, e.Y, e.Width, e.Height = r.X, r.Y, r.W, r.H
	s.display[i] = viewport.ToDisplay(r, s.view.Scale())
	return nil
}

// Update replaces the styling of element i, keeping its field and box.
func (s *Session) Update(i int, style Element) error {
	if err := s.check(i); err != nil {
		return err
	}
	e := &s.cfg.Elements[i]
	e.Label = style.Label
	e.FontSize = style.FontSize
	e.FontName = style.FontName
	e.Color = style.Color
	e.QRFill = style.QRFill
	e.QRBackground = style.QRBackground
	return nil
}

// Zoom applies a new zoom multiplier on top of the base scale.
func (s *Session) Zoom(zoom float64) {
	next := s.view.WithZoom(zoom)
	s.display = viewport.Reproject(s.display, s.view, next)
	s.view = next
}

// Resize recomputes the base scale for a new viewport, keeping the zoom.
func (s *Session) Resize(view viewport.Size) {
	next := viewport.NewViewState(s.template, view).WithZoom(s.view.Zoom)
	s.display = viewport.Reproject(s.display, s.view, next)
	s.view = next
}

// Config returns the layout to persist. Only ScaleFactor reflects the
// view and it is informational.
func (s *Session) Config() *Config {
	cfg := s.cfg
	cfg.Elements = append([]Element(nil), s.cfg.Elements...)
	cfg.ScaleFactor = s.view.Scale()
	return &cfg
}

// Save validates and writes the layout.
func (s *Session) Save(path string) error {
	return Save(s.Config(), path)
}

func (s *Session) reproject() {
	s.display = make([]viewport.DisplayRect, len(s.cfg.Elements))
	for i, e := range s.cfg.Elements {
		s.display[i] = viewport.ToDisplay(e.Rect(), s.view.Scale())
	}
}

func (s *Session) check(i int) error {
	if i < 0 || i >= len(s.cfg.Elements) {
		return fmt.Errorf("no element at index %d", i)
	}
	return nil
}

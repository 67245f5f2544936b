// Package viewport maps template-native pixels to display coordinates.
//
// Native coordinates are what layouts persist. Display coordinates only
// exist while an editor shows the template at some scale; nothing here
// ever feeds back into a saved layout except through ToNative.
package viewport

import "math"

// Size is a width/height pair in pixels.
type Size struct {
	W int
	H int
}

// Rect is an integer rectangle in template-native pixels.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// DisplayRect is a rectangle in display space. It stays fractional so
// that converting back to native does not accumulate rounding.
type DisplayRect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Pixels rounds the rectangle to whole display pixels for drawing.
func (d DisplayRect) Pixels() Rect {
	return Rect{X: round(d.X), Y: round(d.Y), W: round(d.W), H: round(d.H)}
}

// ViewState is the immutable presentation state of an editor.
// BaseScale fits the template into the viewport; Zoom is applied on top.
type ViewState struct {
	BaseScale float64
	Zoom      float64
}

// NewViewState computes a fresh state from the template's current
// dimensions. Callers must not reuse a state from a previous session.
func NewViewState(template, viewport Size) ViewState {
	return ViewState{BaseScale: FitScale(template, viewport), Zoom: 1}
}

// Scale is the effective native-to-display factor.
func (v ViewState) Scale() float64 {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	base := v.BaseScale
	if base <= 0 {
		base = 1
	}
	return base * zoom
}

// WithZoom returns a copy of v using the given zoom multiplier.
func (v ViewState) WithZoom(zoom float64) ViewState {
	if zoom <= 0 {
		zoom = 1
	}
	return ViewState{BaseScale: v.BaseScale, Zoom: zoom}
}

// ToDisplay projects a native rectangle at the given scale.
func ToDisplay(r Rect, scale float64) DisplayRect {
	return DisplayRect{
		X: float64(r.X) * scale,
		Y: float64(r.Y) * scale,
		W: float64(r.W) * scale,
		H: float64(r.H) * scale,
	}
}

// ToNative maps a display rectangle back to native pixels, rounding half up.
func ToNative(d DisplayRect, scale float64) Rect {
	if scale <= 0 {
		scale = 1
	}
	return Rect{
		X: round(d.X / scale),
		Y: round(d.Y / scale),
		W: round(d.W / scale),
		H: round(d.H / scale),
	}
}

// FitScale returns the largest scale not above 1.0 at which the template
// fits the viewport on both axes.
func FitScale(template, viewport Size) float64 {
	if template.W <= 0 || template.H <= 0 || viewport.W <= 0 || viewport.H <= 0 {
		return 1
	}
	sw := float64(viewport.W) / float64(template.W)
	sh := float64(viewport.H) / float64(template.H)
	return math.Min(1, math.Min(sw, sh))
}

// Reproject rescales display rectangles placed under one view state to
// another, using the ratio of the two scales.
func Reproject(rects []DisplayRect, from, to ViewState) []DisplayRect {
	ratio := to.Scale() / from.Scale()
	out := make([]DisplayRect, len(rects))
	for i, r := range rects {
		out[i] = DisplayRect{X: r.X * ratio, Y: r.Y * ratio, W: r.W * ratio, H: r.H * ratio}
	}
	return out
}

// round is round-half-up, also for negative values.
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

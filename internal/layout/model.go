// Package layout holds the persisted description of where invitation
// elements sit on a template, in template-native pixels.
package layout

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"

	"event-invitations/internal/viewport"
)

// Kind is the element variant.
type Kind int

const (
	KindText Kind = iota
	KindQRCode
)

func (k Kind) String() string {
	if k == KindQRCode {
		return "qr"
	}
	return "text"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*k = KindText
	case "qr":
		*k = KindQRCode
	default:
		return fmt.Errorf("unknown element type %q", b)
	}
	return nil
}

func (f Field) MarshalText() ([]byte, error) {
	if f == FieldUnknown {
		return nil, fmt.Errorf("cannot encode unknown field")
	}
	return []byte(f.String()), nil
}

func (f *Field) UnmarshalText(b []byte) error {
	parsed, err := ParseField(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// RGB is an opaque color written as "#rrggbb".
type RGB struct {
	R, G, B uint8
}

var (
	Black = RGB{0, 0, 0}
	White = RGB{255, 255, 255}
)

// ParseRGB accepts "#rrggbb" or "rrggbb".
func ParseRGB(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid color %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGB{b[0], b[1], b[2]}, nil
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Color converts to an opaque image color.
func (c RGB) Color() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

func (c RGB) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *RGB) UnmarshalText(b []byte) error {
	parsed, err := ParseRGB(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DefaultFontSize is used for text elements saved without a size.
const DefaultFontSize = 40

// Element is one positioned item on the template.
type Element struct {
	Field  Field
	Label  string
	Kind   Kind
	X      int
	Y      int
	Width  int
	Height int

	// text only
	FontSize int
	FontName string
	Color    RGB

	// qr only
	QRFill       RGB
	QRBackground RGB
}

// Rect returns the element box in native pixels.
func (e Element) Rect() viewport.Rect {
	return viewport.Rect{X: e.X, Y: e.Y, W: e.Width, H: e.Height}
}

// NewElement creates an element for field f with editor defaults.
func NewElement(f Field) Element {
	e := Element{
		Field:        f,
		Label:        f.Label(),
		Kind:         f.Kind(),
		FontSize:     DefaultFontSize,
		Color:        Black,
		QRFill:       Black,
		QRBackground: White,
	}
	if e.Kind == KindQRCode {
		e.Width, e.Height = 200, 200
	} else {
		e.Width, e.Height = 300, 50
	}
	return e
}

// Config is the layout of one template.
type Config struct {
	TemplatePath   string
	TemplateWidth  int
	TemplateHeight int
	ScaleFactor    float64
	Elements       []Element
}

// QRElement returns the QR slot if the layout has one.
func (c *Config) QRElement() (Element, bool) {
	for _, e := range c.Elements {
		if e.Kind == KindQRCode {
			return e, true
		}
	}
	return Element{}, false
}

// TemplateSize is the native size recorded when the layout was saved.
func (c *Config) TemplateSize() viewport.Size {
	return viewport.Size{W: c.TemplateWidth, H: c.TemplateHeight}
}

// CheckTemplate reports whether the layout was saved against a template
// of other dimensions. Layouts saved without dimensions are accepted.
func (c *Config) CheckTemplate(size viewport.Size) error {
	if c.TemplateWidth == 0 && c.TemplateHeight == 0 {
		return nil
	}
	if c.TemplateWidth != size.W || c.TemplateHeight != size.H {
		return fmt.Errorf("%w: layout recorded %dx%d, template is %dx%d",
			ErrTemplateMismatch, c.TemplateWidth, c.TemplateHeight, size.W, size.H)
	}
	return nil
}

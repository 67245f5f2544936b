package layout

import (
	"fmt"
)

// MinQRSize is the smallest QR box, per axis, that still scans reliably.
const MinQRSize = 50

// Validate checks the structural rules every layout must satisfy: each
// element kind matches its field, fields are not repeated, and there is
// at most one QR slot.
func (c *Config) Validate() error {
	seen := make(map[Field]bool, len(c.Elements))
	for i, e := range c.Elements {
		if e.Field == FieldUnknown {
			return fmt.Errorf("element %d has no id", i)
		}
		if e.Field.Kind() != e.Kind {
			return fmt.Errorf("element %q must be of type %s, got %s", e.Field, e.Field.Kind(), e.Kind)
		}
		if seen[e.Field] {
			return fmt.Errorf("element %q appears more than once", e.Field)
		}
		seen[e.Field] = true
		if e.Kind == KindText && e.FontSize <= 0 {
			return fmt.Errorf("element %q has invalid font size %d", e.Field, e.FontSize)
		}
	}
	return nil
}

// CheckBounds rejects elements whose origin falls outside the recorded
// template. Elements that only overflow the right or bottom edge are
// accepted; Inspect reports them.
func (c *Config) CheckBounds() error {
	for _, e := range c.Elements {
		if e.X >= c.TemplateWidth || e.Y >= c.TemplateHeight || e.X+e.Width <= 0 || e.Y+e.Height <= 0 {
			return fmt.Errorf("%w: %q at (%d,%d) on %dx%d template",
				ErrOutOfBounds, e.Field, e.X, e.Y, c.TemplateWidth, c.TemplateHeight)
		}
	}
	return nil
}

// Warning is a non-fatal finding about one element.
type Warning struct {
	Field   Field
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// Inspect lists the soft problems of a layout: boxes too small to be
// useful and placements partly or fully off the template.
func (c *Config) Inspect() []Warning {
	var out []Warning
	add := func(f Field, format string, args ...any) {
		out = append(out, Warning{Field: f, Message: fmt.Sprintf(format, args...)})
	}

	for _, e := range c.Elements {
		if e.Kind == KindQRCode && (e.Width < MinQRSize || e.Height < MinQRSize) {
			add(e.Field, "QR code smaller than %dpx (%dx%d)", MinQRSize, e.Width, e.Height)
		}
		if e.Height < 20 {
			add(e.Field, "very small height (%dpx)", e.Height)
		}
		if e.X < 0 || e.Y < 0 {
			add(e.Field, "negative position (%d,%d)", e.X, e.Y)
		}
		if c.TemplateWidth > 0 && e.X > c.TemplateWidth {
			add(e.Field, "x %d is past the template width %d", e.X, c.TemplateWidth)
		} else if c.TemplateWidth > 0 && e.X+e.Width > c.TemplateWidth {
			add(e.Field, "box overflows the right edge by %dpx", e.X+e.Width-c.TemplateWidth)
		}
		if c.TemplateHeight > 0 && e.Y > c.TemplateHeight {
			add(e.Field, "y %d is past the template height %d", e.Y, c.TemplateHeight)
		} else if c.TemplateHeight > 0 && e.Y+e.Height > c.TemplateHeight {
			add(e.Field, "box overflows the bottom edge by %dpx", e.Y+e.Height-c.TemplateHeight)
		}
	}
	return out
}

package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"event-invitations/internal/layout"
	"event-invitations/internal/models"
)

// Colors of the built-in layout.
var (
	titleColor = color.NRGBA{R: 46, G: 134, B: 171, A: 255}
	mutedColor = color.NRGBA{R: 100, G: 100, B: 100, A: 255}
	inkColor   = color.NRGBA{A: 255}
)

// drawBaseline draws s with its baseline starting at (x, y).
func drawBaseline(dst *image.NRGBA, face font.Face, c color.Color, x, y int, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCentered draws s with the middle of its glyph box at (cx, cy).
func drawCentered(dst *image.NRGBA, face font.Face, c color.Color, cx, cy int, s string) {
	width := font.MeasureString(face, s)
	m := face.Metrics()
	x := fixed.I(cx) - width/2
	y := fixed.I(cy) + (m.Ascent-m.Descent)/2
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(s)
}

// applyLayout draws every element of cfg onto canvas. Text sits on the
// bottom edge of its box, starting at the left edge.
func (e *Engine) applyLayout(canvas *image.NRGBA, cfg *layout.Config, guest models.Guest, event models.Event, code image.Image) *image.NRGBA {
	for _, el := range cfg.Elements {
		switch el.Kind {
		case layout.KindQRCode:
			w, h := max(el.Width, layout.MinQRSize), max(el.Height, layout.MinQRSize)
			resized := imaging.Resize(code, w, h, imaging.NearestNeighbor)
			canvas = imaging.Paste(canvas, resized, image.Pt(max(0, el.X), max(0, el.Y)))
		case layout.KindText:
			text := el.Field.Value(guest, event)
			if text == "" {
				continue
			}
			face := e.fonts.Face(el.FontName, el.FontSize)
			drawBaseline(canvas, face, el.Color.Color(), el.X, el.Y+el.Height, text)
		}
	}
	return canvas
}

// applyDefault composes the built-in layout used when a template has no
// layout file.
func (e *Engine) applyDefault(canvas *image.NRGBA, guest models.Guest, event models.Event, code image.Image) *image.NRGBA {
	width, height := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	title := e.fonts.Face("", 80)
	name := e.fonts.Face("", 60)
	text := e.fonts.Face("", 40)

	drawCentered(canvas, title, titleColor, width/2, 200, event.Name)
	drawCentered(canvas, name, inkColor, width/2, 500, guest.FullName())
	drawCentered(canvas, text, mutedColor, width/2, 600, fmt.Sprintf("Category: %s", guest.Category))

	details := []string{
		fmt.Sprintf("Date: %s", event.Date),
		fmt.Sprintf("Time: %s", event.Time),
		fmt.Sprintf("Place: %s", event.Place),
	}
	if guest.TableName != "" {
		details = append(details, fmt.Sprintf("Table: %s", guest.TableName))
	}
	y := 800
	for _, line := range details {
		drawCentered(canvas, text, inkColor, width/2, y, line)
		y += 80
	}

	canvas = imaging.Paste(canvas, code, image.Pt(max(0, width-400), max(0, height-400)))
	drawCentered(canvas, text, mutedColor, width-250, height-80, "Scan to check in")
	return canvas
}

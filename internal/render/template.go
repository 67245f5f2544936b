package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

var ErrTemplateUnreadable = errors.New("template unreadable")

// Default blank canvas, A5 at 300 dpi.
const (
	BlankWidth  = 1748
	BlankHeight = 2480
)

// TemplateLoader loads template bitmaps. Errors wrapping
// ErrTemplateUnreadable make the engine fall back to a blank canvas; any
// other error fails the render of that guest.
type TemplateLoader interface {
	Load(path string) (image.Image, error)
}

// FileTemplates loads templates from disk with imaging.
type FileTemplates struct{}

func (FileTemplates) Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateUnreadable, path, err)
	}
	return img, nil
}

// BlankCanvas is the template used when none can be loaded.
func BlankCanvas() *image.NRGBA {
	return imaging.New(BlankWidth, BlankHeight, color.White)
}

// writeJPEG encodes img at the given quality and stamps the resolution
// into a JFIF header, which image/jpeg does not write.
func writeJPEG(path string, img image.Image, quality, dpi int) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}
	return writeFile(path, withDensity(buf.Bytes(), dpi))
}

// withDensity inserts an APP0 JFIF segment right after SOI.
func withDensity(jpg []byte, dpi int) []byte {
	if dpi <= 0 || dpi > 0xffff || len(jpg) < 2 || jpg[0] != 0xff || jpg[1] != 0xd8 {
		return jpg
	}
	app0 := []byte{
		0xff, 0xe0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version 1.01
		0x01,       // units: dots per inch
		0, 0, 0, 0, // x/y density
		0x00, 0x00, // no thumbnail
	}
	binary.BigEndian.PutUint16(app0[12:], uint16(dpi))
	binary.BigEndian.PutUint16(app0[14:], uint16(dpi))

	out := make([]byte, 0, len(jpg)+len(app0))
	out = append(out, jpg[:2]...)
	out = append(out, app0...)
	return append(out, jpg[2:]...)
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode QR code: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

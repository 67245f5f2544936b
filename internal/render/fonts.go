package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

var ErrFontUnavailable = errors.New("font unavailable")

// DefaultFontChain is tried, in order, when an element names no font or
// its font cannot be loaded.
var DefaultFontChain = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	`C:\Windows\Fonts\arial.ttf`,
	"/System/Library/Fonts/Supplemental/Arial.ttf",
}

// Fonts resolves font references to faces. An explicit reference is
// tried as a path, then relative to Dir; then the platform chain; then
// the embedded Go Bold font, which always exists.
type Fonts struct {
	Dir   string
	Chain []string

	log   zerolog.Logger
	mu    sync.Mutex
	cache map[string]*opentype.Font
	// paths that failed to load, and references already reported
	failed  map[string]bool
	missing map[string]bool
}

// NewFonts creates a resolver. A nil chain means embedded font only.
func NewFonts(dir string, chain []string, log zerolog.Logger) *Fonts {
	return &Fonts{
		Dir:     dir,
		Chain:   chain,
		log:     log,
		cache:   make(map[string]*opentype.Font),
		failed:  make(map[string]bool),
		missing: make(map[string]bool),
	}
}

// Face returns a new face for ref at size pixels. Faces are not safe for
// concurrent use, so every render asks for its own.
func (f *Fonts) Face(ref string, size int) font.Face {
	if size <= 0 {
		size = 12
	}
	fnt := f.resolve(ref)
	if fnt == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		f.log.Warn().Err(err).Str("font", ref).Msg("Failed to create font face, falling back to bitmap font")
		return basicfont.Face7x13
	}
	return face
}

func (f *Fonts) resolve(ref string) *opentype.Font {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ref != "" {
		candidates := []string{ref}
		if f.Dir != "" && !filepath.IsAbs(ref) {
			candidates = append(candidates, filepath.Join(f.Dir, ref))
		}
		for _, path := range candidates {
			if fnt, err := f.load(path); err == nil {
				return fnt
			}
		}
		if !f.missing[ref] {
			f.missing[ref] = true
			f.log.Warn().Str("font", ref).Msg("Font unavailable, using fallback chain")
		}
	}

	for _, path := range f.Chain {
		if fnt, err := f.load(path); err == nil {
			return fnt
		}
	}

	fnt, err := f.load("")
	if err != nil {
		f.log.Error().Err(err).Msg("Embedded font failed to parse")
		return nil
	}
	return fnt
}

// load parses and caches the font at path; "" is the embedded font.
func (f *Fonts) load(path string) (*opentype.Font, error) {
	if fnt, ok := f.cache[path]; ok {
		return fnt, nil
	}
	if f.failed[path] {
		return nil, ErrFontUnavailable
	}

	var data []byte
	if path == "" {
		data = gobold.TTF
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			f.failed[path] = true
			return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
		}
		data = b
	}

	fnt, err := opentype.Parse(data)
	if err != nil {
		f.failed[path] = true
		return nil, fmt.Errorf("%w: %s: %v", ErrFontUnavailable, path, err)
	}
	f.cache[path] = fnt
	return fnt, nil
}

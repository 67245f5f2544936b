package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound         = errors.New("layout not found")
	ErrCorrupt          = errors.New("layout file is corrupt")
	ErrTemplateMismatch = errors.New("layout was saved for a different template size")
	ErrOutOfBounds      = errors.New("element lies outside the template")
)

// FileExt is the extension of a layout file next to its template.
const FileExt = ".json"

// ConfigPath returns the layout path for a template: same base name,
// layout extension.
func ConfigPath(templatePath string) string {
	return strings.TrimSuffix(templatePath, filepath.Ext(templatePath)) + FileExt
}

type fileConfig struct {
	TemplatePath   string        `json:"template_path"`
	TemplateWidth  int           `json:"template_width" validate:"gte=0"`
	TemplateHeight int           `json:"template_height" validate:"gte=0"`
	ScaleFactor    float64       `json:"scale_factor,omitempty" validate:"gte=0"`
	Elements       []fileElement `json:"elements" validate:"dive"`
}

type fileElement struct {
	ID          *Field `json:"id" validate:"required"`
	Label       string `json:"label"`
	Type        *Kind  `json:"type" validate:"required"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width" validate:"gte=0"`
	Height      int    `json:"height" validate:"gte=0"`
	FontSize    int    `json:"font_size,omitempty" validate:"gte=0,lte=1000"`
	FontName    string `json:"font_name,omitempty"`
	Color       *RGB   `json:"color,omitempty"`
	QRBgColor   *RGB   `json:"qr_bg_color,omitempty"`
	QRFillColor *RGB   `json:"qr_fill_color,omitempty"`
}

var validate = validator.New()

// Load reads the layout at path. A missing file yields ErrNotFound; any
// structural problem yields ErrCorrupt.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}

	var raw fileConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	cfg := &Config{
		TemplatePath:   raw.TemplatePath,
		TemplateWidth:  raw.TemplateWidth,
		TemplateHeight: raw.TemplateHeight,
		ScaleFactor:    raw.ScaleFactor,
		Elements:       make([]Element, 0, len(raw.Elements)),
	}
	for _, fe := range raw.Elements {
		cfg.Elements = append(cfg.Elements, fe.element())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return cfg, nil
}

// Save writes cfg to path. The template dimensions must be set so that a
// later Load can detect template drift.
func Save(cfg *Config, path string) error {
	if cfg.TemplateWidth <= 0 || cfg.TemplateHeight <= 0 {
		return fmt.Errorf("layout has no template dimensions")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.CheckBounds(); err != nil {
		return err
	}

	raw := fileConfig{
		TemplatePath:   cfg.TemplatePath,
		TemplateWidth:  cfg.TemplateWidth,
		TemplateHeight: cfg.TemplateHeight,
		ScaleFactor:    cfg.ScaleFactor,
		Elements:       make([]fileElement, 0, len(cfg.Elements)),
	}
	for _, e := range cfg.Elements {
		raw.Elements = append(raw.Elements, newFileElement(e))
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal layout: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func (fe fileElement) element() Element {
	e := Element{
		Field:        *fe.ID,
		Label:        fe.Label,
		Kind:         *fe.Type,
		X:            fe.X,
		Y:            fe.Y,
		Width:        fe.Width,
		Height:       fe.Height,
		FontSize:     fe.FontSize,
		FontName:     fe.FontName,
		Color:        Black,
		QRFill:       Black,
		QRBackground: White,
	}
	if e.FontSize == 0 {
		e.FontSize = DefaultFontSize
	}
	if e.Label == "" {
		e.Label = e.Field.Label()
	}
	if fe.Color != nil {
		e.Color = *fe.Color
	}
	if fe.QRFillColor != nil {
		e.QRFill = *fe.QRFillColor
	}
	if fe.QRBgColor != nil {
		e.QRBackground = *fe.QRBgColor
	}
	return e
}

func newFileElement(e Element) fileElement {
	id, kind := e.Field, e.Kind
	fe := fileElement{
		ID:     &id,
		Label:  e.Label,
		Type:   &kind,
		X:      e.X,
		Y:      e.Y,
		Width:  e.Width,
		Height: e.Height,
	}
	switch e.Kind {
	case KindText:
		c := e.Color
		fe.FontSize = e.FontSize
		fe.FontName = e.FontName
		fe.Color = &c
	case KindQRCode:
		fill, bg := e.QRFill, e.QRBackground
		fe.QRFillColor = &fill
		fe.QRBgColor = &bg
	}
	return fe
}

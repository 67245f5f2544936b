package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-invitations/internal/models"
	"event-invitations/internal/viewport"
)

func sampleConfig() *Config {
	name := NewElement(FieldFullName)
	name.X, name.Y, name.Width, name.Height = 100, 400, 800, 80
	name.Color = RGB{0x2e, 0x86, 0xab}
	name.FontName = "DejaVuSans-Bold.ttf"

	qr := NewElement(FieldQRCode)
	qr.X, qr.Y = 1300, 2000
	qr.QRFill = RGB{0x10, 0x20, 0x30}

	return &Config{
		TemplatePath:   "templates/wedding.png",
		TemplateWidth:  1748,
		TemplateHeight: 2480,
		Elements:       []Element{name, qr},
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "templates/wedding.json", ConfigPath("templates/wedding.png"))
	assert.Equal(t, "a/b.c/card.json", ConfigPath("a/b.c/card.jpeg"))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wedding.json")
	cfg := sampleConfig()

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1748, loaded.TemplateWidth)
	assert.Equal(t, 2480, loaded.TemplateHeight)
	assert.Equal(t, cfg.Elements, loaded.Elements)

	qr, ok := loaded.QRElement()
	require.True(t, ok)
	assert.Equal(t, RGB{0x10, 0x20, 0x30}, qr.QRFill)
	assert.Equal(t, White, qr.QRBackground)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrCorrupt)
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"elements": [`},
		{"unknown id", `{"elements":[{"id":"favourite_color","type":"text","x":0,"y":0,"width":1,"height":1}]}`},
		{"unknown type", `{"elements":[{"id":"nom","type":"image","x":0,"y":0,"width":1,"height":1}]}`},
		{"kind mismatch", `{"elements":[{"id":"qrcode","type":"text","x":0,"y":0,"width":1,"height":1}]}`},
		{"missing id", `{"elements":[{"type":"text","x":0,"y":0,"width":1,"height":1}]}`},
		{"negative width", `{"elements":[{"id":"nom","type":"text","x":0,"y":0,"width":-4,"height":1}]}`},
		{"bad color", `{"elements":[{"id":"nom","type":"text","x":0,"y":0,"width":1,"height":1,"color":"red"}]}`},
		{"duplicate", `{"elements":[{"id":"qrcode","type":"qr","width":60,"height":60},{"id":"qrcode","type":"qr","width":60,"height":60}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "layout.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.json")
	body := `{"template_path":"t.png","elements":[{"id":"event_nom","type":"text","x":10,"y":20,"width":300,"height":50}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Elements, 1)
	e := cfg.Elements[0]
	assert.Equal(t, FieldEventName, e.Field)
	assert.Equal(t, DefaultFontSize, e.FontSize)
	assert.Equal(t, Black, e.Color)
	assert.Equal(t, "Event name", e.Label)
	assert.NoError(t, cfg.CheckTemplate(viewport.Size{W: 10, H: 10}), "no recorded size means no drift check")
}

func TestCheckTemplate(t *testing.T) {
	cfg := sampleConfig()
	assert.NoError(t, cfg.CheckTemplate(viewport.Size{W: 1748, H: 2480}))
	assert.ErrorIs(t, cfg.CheckTemplate(viewport.Size{W: 874, H: 1240}), ErrTemplateMismatch)
}

func TestSaveRejectsElementsOffTemplate(t *testing.T) {
	cfg := sampleConfig()
	cfg.Elements[1].X = 5000

	err := Save(cfg, filepath.Join(t.TempDir(), "x.json"))
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSaveAcceptsPartialOverflow(t *testing.T) {
	cfg := sampleConfig()
	cfg.Elements[1].X = 1700

	require.NoError(t, Save(cfg, filepath.Join(t.TempDir(), "x.json")))
	warnings := cfg.Inspect()
	require.Len(t, warnings, 1)
	assert.Equal(t, FieldQRCode, warnings[0].Field)
}

func TestInspect(t *testing.T) {
	cfg := &Config{TemplateWidth: 1000, TemplateHeight: 1000}
	qr := NewElement(FieldQRCode)
	qr.Width, qr.Height = 40, 40
	text := NewElement(FieldCategory)
	text.X, text.Y, text.Height = -5, 10, 10
	cfg.Elements = []Element{qr, text}

	var msgs []string
	for _, w := range cfg.Inspect() {
		msgs = append(msgs, w.String())
	}
	assert.Contains(t, msgs, "qrcode: QR code smaller than 50px (40x40)")
	assert.Contains(t, msgs, "categorie: very small height (10px)")
	assert.Contains(t, msgs, "categorie: negative position (-5,10)")
}

func TestFieldValueIsTotal(t *testing.T) {
	guest := models.Guest{FirstName: "Ada", LastName: "Lovelace", Category: "VIP", TableName: "T1"}
	event := models.Event{Name: "Gala", Date: "2026-05-01", Time: "19:00", Place: "Hall"}

	want := map[Field]string{
		FieldFullName:   "Ada Lovelace",
		FieldFirstName:  "Ada",
		FieldLastName:   "Lovelace",
		FieldCategory:   "VIP",
		FieldTable:      "T1",
		FieldEventName:  "Gala",
		FieldEventDate:  "2026-05-01",
		FieldEventTime:  "19:00",
		FieldEventPlace: "Hall",
		FieldQRCode:     "",
	}
	for _, f := range Fields() {
		assert.Equal(t, want[f], f.Value(guest, event), f.String())
		parsed, err := ParseField(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}
}

func TestSessionKeepsNativeCoordinates(t *testing.T) {
	cfg := sampleConfig()
	s := OpenSession(cfg, viewport.Size{W: 1748, H: 2480}, viewport.Size{W: 874, H: 1240})
	require.NoError(t, s.Drift())
	assert.InDelta(t, 0.5, s.View().Scale(), 1e-9)

	s.Zoom(1.7)
	s.Zoom(0.3)
	s.Resize(viewport.Size{W: 600, H: 600})

	assert.Equal(t, cfg.Elements, s.Elements())

	dir := t.TempDir()
	require.NoError(t, s.Save(filepath.Join(dir, "w.json")))
	loaded, err := Load(filepath.Join(dir, "w.json"))
	require.NoError(t, err)
	assert.Equal(t, cfg.Elements, loaded.Elements)
}

func TestSessionMoveInDisplaySpace(t *testing.T) {
	s := OpenSession(nil, viewport.Size{W: 2000, H: 1000}, viewport.Size{W: 1000, H: 1000})
	i, err := s.Add(FieldEventDate)
	require.NoError(t, err)

	_, err = s.Add(FieldEventDate)
	assert.Error(t, err)

	require.NoError(t, s.Move(i, viewport.DisplayRect{X: 50, Y: 100, W: 150, H: 25}))
	assert.Equal(t, viewport.Rect{X: 100, Y: 200, W: 300, H: 50}, s.Elements()[i].Rect())

	s.Zoom(2)
	assert.Equal(t, viewport.Rect{X: 100, Y: 200, W: 300, H: 50}, s.Display()[i].Pixels())
	assert.Equal(t, viewport.Rect{X: 100, Y: 200, W: 300, H: 50}, s.Elements()[i].Rect())
}

func TestSessionDetectsDrift(t *testing.T) {
	s := OpenSession(sampleConfig(), viewport.Size{W: 874, H: 1240}, viewport.Size{W: 874, H: 1240})
	assert.ErrorIs(t, s.Drift(), ErrTemplateMismatch)
	assert.InDelta(t, 1.0, s.View().Scale(), 1e-9)
	assert.Equal(t, 874, s.Config().TemplateWidth)
}

package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"event-invitations/internal/layout"
	"event-invitations/internal/models"
	"event-invitations/internal/qr"
	"event-invitations/internal/viewport"
)

func newTestEngine(t *testing.T, loader TemplateLoader) *Engine {
	t.Helper()
	dir := t.TempDir()
	e := NewEngine(Options{
		InvitationsDir: filepath.Join(dir, "invitations"),
		QRCodesDir:     filepath.Join(dir, "qrcodes"),
		JPEGQuality:    95,
		DPI:            300,
	}, loader, NewFonts("", nil, zerolog.Nop()), zerolog.Nop())
	return e
}

func testGuest(id int64) models.Guest {
	return models.Guest{
		ID:        id,
		EventID:   1,
		FirstName: "Ada",
		LastName:  fmt.Sprintf("Guest%d", id),
		Category:  "VIP",
		TableName: "Table 2",
		Status:    models.StatusPending,
	}
}

func testEvent(template string) models.Event {
	return models.Event{ID: 1, Name: "Spring Gala", Date: "01/05/2026", Time: "19:00", Place: "Main hall", TemplatePath: template}
}

// writeTemplate writes a w x h template filled with c and returns its path.
func writeTemplate(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.png")
	require.NoError(t, imaging.Save(imaging.New(w, h, c), path))
	return path
}

func TestRenderFallbackLayout(t *testing.T) {
	e := newTestEngine(t, nil)

	res, err := e.Render(Job{Guest: testGuest(1), Event: testEvent("")})
	require.NoError(t, err)

	img, err := imaging.Open(res.InvitationPath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, BlankWidth, BlankHeight), img.Bounds())

	id, err := qr.Extract(res.Payload)
	require.NoError(t, err)
	assert.Equal(t, res.Identifier, id)
	assert.Regexp(t, `^INVITE-1-[0-9a-f]{8}$`, id)

	code, err := imaging.Open(res.QRCodePath)
	require.NoError(t, err)
	assert.Equal(t, 300, code.Bounds().Dx())

	text, err := qr.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, res.Payload, text)
}

func TestRenderIsDeterministic(t *testing.T) {
	template := writeTemplate(t, 600, 800, color.NRGBA{R: 250, G: 240, B: 230, A: 255})
	job := Job{Guest: testGuest(7), Event: testEvent(template), Identifier: "INVITE-7-00c0ffee"}

	first, err := newTestEngine(t, nil).Render(job)
	require.NoError(t, err)
	second, err := newTestEngine(t, nil).Render(job)
	require.NoError(t, err)

	assert.Equal(t, first.Payload, second.Payload)
	for _, pair := range [][2]string{
		{first.InvitationPath, second.InvitationPath},
		{first.QRCodePath, second.QRCodePath},
	} {
		a, err := os.ReadFile(pair[0])
		require.NoError(t, err)
		b, err := os.ReadFile(pair[1])
		require.NoError(t, err)
		assert.NotEmpty(t, a)
		assert.Equal(t, a, b)
	}
}

func TestRenderWithLayoutIsDeterministic(t *testing.T) {
	template := writeTemplate(t, 800, 600, color.White)
	fontDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fontDir, "regular.ttf"), goregular.TTF, 0644))

	name := layout.NewElement(layout.FieldFullName)
	name.X, name.Y, name.Width, name.Height = 40, 30, 500, 80
	name.FontName = "regular.ttf"
	name.Color = layout.RGB{R: 120, G: 20, B: 20}
	place := layout.NewElement(layout.FieldEventPlace)
	place.X, place.Y, place.Width, place.Height = 40, 150, 400, 50
	code := layout.NewElement(layout.FieldQRCode)
	code.X, code.Y, code.Width, code.Height = 480, 260, 260, 260
	cfg := &layout.Config{TemplateWidth: 800, TemplateHeight: 600, Elements: []layout.Element{name, place, code}}
	require.NoError(t, layout.Save(cfg, layout.ConfigPath(template)))

	renderOnce := func() []byte {
		t.Helper()
		dir := t.TempDir()
		e := NewEngine(Options{
			InvitationsDir: filepath.Join(dir, "invitations"),
			QRCodesDir:     filepath.Join(dir, "qrcodes"),
		}, nil, NewFonts(fontDir, nil, zerolog.Nop()), zerolog.Nop())
		res, err := e.Render(Job{Guest: testGuest(9), Event: testEvent(template), Identifier: "INVITE-9-0ddba11a"})
		require.NoError(t, err)
		data, err := os.ReadFile(res.InvitationPath)
		require.NoError(t, err)
		return data
	}

	first := renderOnce()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, renderOnce())
}

func TestRenderIssuesNewIdentifierEachTime(t *testing.T) {
	e := newTestEngine(t, nil)
	guest := testGuest(3)

	first, err := e.Render(Job{Guest: guest, Event: testEvent("")})
	require.NoError(t, err)
	assert.False(t, first.Regenerated)

	guest.QRCode = first.Identifier
	second, err := e.Render(Job{Guest: guest, Event: testEvent("")})
	require.NoError(t, err)
	assert.NotEqual(t, first.Identifier, second.Identifier)
	assert.True(t, second.Regenerated)
}

func TestRenderWithLayout(t *testing.T) {
	template := writeTemplate(t, 800, 600, color.White)

	name := layout.NewElement(layout.FieldFullName)
	name.X, name.Y, name.Width, name.Height = 50, 20, 500, 100
	name.FontSize = 60
	name.Color = layout.RGB{B: 255}

	code := layout.NewElement(layout.FieldQRCode)
	code.X, code.Y, code.Width, code.Height = 450, 250, 300, 300

	cfg := &layout.Config{TemplateWidth: 800, TemplateHeight: 600, Elements: []layout.Element{name, code}}
	require.NoError(t, layout.Save(cfg, layout.ConfigPath(template)))

	e := newTestEngine(t, nil)
	res, err := e.Render(Job{Guest: testGuest(5), Event: testEvent(template)})
	require.NoError(t, err)

	img, err := imaging.Open(res.InvitationPath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())

	blue := 0
	for y := 20; y < 120; y++ {
		for x := 50; x < 550; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if b>>8 > 150 && r>>8 < 100 && g>>8 < 100 {
				blue++
			}
		}
	}
	assert.Greater(t, blue, 100, "guest name should be drawn inside its box")

	outside := 0
	for y := 130; y < 240; y++ {
		for x := 50; x < 400; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
				outside++
			}
		}
	}
	assert.Zero(t, outside, "nothing should be drawn below the text baseline")

	sub, err := imaging.Open(res.QRCodePath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 300), sub.Bounds())

	pasted := imaging.Crop(img, image.Rect(450, 250, 750, 550))
	text, err := qr.Decode(pasted)
	require.NoError(t, err)
	assert.Equal(t, res.Payload, text)
}

func TestRenderClampsNegativeOrigin(t *testing.T) {
	template := writeTemplate(t, 400, 400, color.White)
	body := `{"template_width":400,"template_height":400,"elements":[` +
		`{"id":"qrcode","type":"qr","x":-30,"y":-30,"width":300,"height":300,"qr_fill_color":"#000000","qr_bg_color":"#ffffff"}]}`
	require.NoError(t, os.WriteFile(layout.ConfigPath(template), []byte(body), 0644))

	res, err := newTestEngine(t, nil).Render(Job{Guest: testGuest(2), Event: testEvent(template)})
	require.NoError(t, err)

	img, err := imaging.Open(res.InvitationPath)
	require.NoError(t, err)
	text, err := qr.Decode(imaging.Crop(img, image.Rect(0, 0, 300, 300)))
	require.NoError(t, err)
	assert.Equal(t, res.Payload, text)
}

func TestRenderCorruptLayoutFallsBack(t *testing.T) {
	template := writeTemplate(t, 1000, 1000, color.White)
	require.NoError(t, os.WriteFile(layout.ConfigPath(template), []byte("{not json"), 0644))

	res, err := newTestEngine(t, nil).Render(Job{Guest: testGuest(4), Event: testEvent(template)})
	require.NoError(t, err)

	img, err := imaging.Open(res.InvitationPath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1000, 1000), img.Bounds())
}

func TestRenderUnreadableTemplateUsesBlankCanvas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	res, err := newTestEngine(t, nil).Render(Job{Guest: testGuest(8), Event: testEvent(path)})
	require.NoError(t, err)

	img, err := imaging.Open(res.InvitationPath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, BlankWidth, BlankHeight), img.Bounds())
}

func TestInvalidateReloadsLayout(t *testing.T) {
	template := writeTemplate(t, 600, 600, color.White)
	e := newTestEngine(t, nil)
	job := Job{Guest: testGuest(3), Event: testEvent(template)}

	qrSize := func() int {
		t.Helper()
		res, err := e.Render(job)
		require.NoError(t, err)
		sub, err := imaging.Open(res.QRCodePath)
		require.NoError(t, err)
		return sub.Bounds().Dx()
	}
	assert.Equal(t, 300, qrSize())

	code := layout.NewElement(layout.FieldQRCode)
	code.X, code.Y, code.Width, code.Height = 10, 10, 120, 120
	cfg := &layout.Config{TemplateWidth: 600, TemplateHeight: 600, Elements: []layout.Element{code}}
	require.NoError(t, layout.Save(cfg, layout.ConfigPath(template)))

	assert.Equal(t, 300, qrSize(), "designs are cached")
	e.Invalidate()
	assert.Equal(t, 120, qrSize())
}

func TestInvitationCarriesDensity(t *testing.T) {
	res, err := newTestEngine(t, nil).Render(Job{Guest: testGuest(1), Event: testEvent("")})
	require.NoError(t, err)

	data, err := os.ReadFile(res.InvitationPath)
	require.NoError(t, err)
	require.Greater(t, len(data), 20)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, data[:4])
	assert.Equal(t, "JFIF", string(data[6:10]))
	assert.Equal(t, []byte{0x01, 0x01, 0x2c, 0x01, 0x2c}, data[13:18])
}

// writeRotatedJPEG writes a w x h JPEG whose EXIF orientation asks for a
// quarter turn, so it displays as h x w.
func writeRotatedJPEG(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.White), imaging.JPEG))
	jpg := buf.Bytes()

	tiff := []byte{
		'M', 'M', 0x00, 0x2a, 0x00, 0x00, 0x00, 0x08, // big endian header, IFD at 8
		0x00, 0x01, // one entry
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x06, 0x00, 0x00, // orientation = 6
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
	body := append([]byte("Exif\x00\x00"), tiff...)
	app1 := []byte{0xff, 0xe1, byte((len(body) + 2) >> 8), byte(len(body) + 2)}

	var out []byte
	out = append(out, jpg[:2]...)
	out = append(out, app1...)
	out = append(out, body...)
	out = append(out, jpg[2:]...)

	path := filepath.Join(t.TempDir(), "rotated.jpg")
	require.NoError(t, os.WriteFile(path, out, 0644))
	return path
}

func TestTemplateSizeMatchesRender(t *testing.T) {
	template := writeRotatedJPEG(t, 800, 400)
	e := newTestEngine(t, nil)

	size, err := e.TemplateSize(template)
	require.NoError(t, err)
	assert.Equal(t, viewport.Size{W: 400, H: 800}, size)

	res, err := e.Render(Job{Guest: testGuest(1), Event: testEvent(template)})
	require.NoError(t, err)
	img, err := imaging.Open(res.InvitationPath)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, size.W, size.H), img.Bounds())

	_, err = e.TemplateSize(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrTemplateUnreadable)
}

// recoveringTemplates fails with an unreadable template until fails
// reaches zero.
type recoveringTemplates struct {
	fails int
}

func (r *recoveringTemplates) Load(path string) (image.Image, error) {
	if r.fails > 0 {
		r.fails--
		return nil, fmt.Errorf("%w: %s: device busy", ErrTemplateUnreadable, path)
	}
	return imaging.New(500, 700, color.White), nil
}

func TestUnreadableTemplateIsRetried(t *testing.T) {
	loader := &recoveringTemplates{fails: 1}
	e := newTestEngine(t, loader)
	job := Job{Guest: testGuest(4), Event: testEvent("flaky.png")}

	bounds := func() image.Rectangle {
		t.Helper()
		res, err := e.Render(job)
		require.NoError(t, err)
		img, err := imaging.Open(res.InvitationPath)
		require.NoError(t, err)
		return img.Bounds()
	}
	assert.Equal(t, image.Rect(0, 0, BlankWidth, BlankHeight), bounds())
	assert.Equal(t, image.Rect(0, 0, 500, 700), bounds())
}

type flakyTemplates struct {
	failing string
}

func (f flakyTemplates) Load(path string) (image.Image, error) {
	if path == f.failing {
		return nil, errors.New("permission denied")
	}
	return imaging.New(500, 700, color.White), nil
}

func TestRenderBatchIsolatesFailures(t *testing.T) {
	e := newTestEngine(t, flakyTemplates{failing: "broken.png"})

	var jobs []Job
	for i := int64(1); i <= 10; i++ {
		event := testEvent("ok.png")
		if i == 6 {
			event = testEvent("broken.png")
		}
		jobs = append(jobs, Job{Guest: testGuest(i), Event: event})
	}

	results := e.RenderBatch(context.Background(), jobs)
	require.Len(t, results, 10)

	ok := 0
	for _, r := range results {
		if r.Success() {
			ok++
			assert.FileExists(t, r.Result.InvitationPath)
			continue
		}
		assert.Equal(t, int64(6), r.GuestID)
		assert.ErrorContains(t, r.Err, "permission denied")
	}
	assert.Equal(t, 9, ok)
}

func TestRenderBatchStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.RenderBatch(ctx, []Job{{Guest: testGuest(1), Event: testEvent("")}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestFontsFallBackToEmbedded(t *testing.T) {
	f := NewFonts(t.TempDir(), []string{"/does/not/exist.ttf"}, zerolog.Nop())
	face := f.Face("missing.ttf", 40)
	require.NotNil(t, face)
	assert.Greater(t, face.Metrics().Ascent.Ceil(), 20)
}

func TestFontsResolveExplicitReference(t *testing.T) {
	dir := t.TempDir()
	relative := filepath.Join(dir, "regular.ttf")
	require.NoError(t, os.WriteFile(relative, goregular.TTF, 0644))
	absolute := filepath.Join(t.TempDir(), "mono.ttf")
	require.NoError(t, os.WriteFile(absolute, gomono.TTF, 0644))

	f := NewFonts(dir, []string{"/does/not/exist.ttf"}, zerolog.Nop())
	embedded, err := f.load("")
	require.NoError(t, err)

	byName := f.resolve("regular.ttf")
	require.NotNil(t, byName)
	assert.Same(t, f.cache[relative], byName)
	assert.NotSame(t, embedded, byName)

	byPath := f.resolve(absolute)
	require.NotNil(t, byPath)
	assert.Same(t, f.cache[absolute], byPath)
	assert.NotSame(t, byName, byPath)

	assert.Empty(t, f.missing)
	assert.Same(t, embedded, f.resolve("nope.ttf"))
	assert.True(t, f.missing["nope.ttf"])

	regular := f.Face("regular.ttf", 40)
	mono := f.Face(absolute, 40)
	assert.NotEqual(t, font.MeasureString(regular, "Ada Lovelace"), font.MeasureString(mono, "Ada Lovelace"))
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-invitations/internal/checkin"
	"event-invitations/internal/models"
	"event-invitations/internal/qr"
	"event-invitations/internal/storage"
)

const adaCode = "INVITE-1-0badf00d"

type fixture struct {
	router  *gin.Engine
	store   *storage.Storage
	eventID int64
	guestID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "api.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	eventID, err := store.AddEvent(ctx, models.Event{Name: "Gala", Date: "01/05/2026", Time: "19:00", Place: "Hall"})
	require.NoError(t, err)
	guestID, err := store.AddGuest(ctx, models.Guest{EventID: eventID, FirstName: "Ada", LastName: "Lovelace", AccompanyingGuests: 1})
	require.NoError(t, err)
	_, err = store.AddGuest(ctx, models.Guest{EventID: eventID, FirstName: "Alan", LastName: "Turing"})
	require.NoError(t, err)
	require.NoError(t, store.SetInvitation(ctx, guestID, adaCode, "/tmp/ada.jpg"))

	v := checkin.NewValidator(store, "Gate", zerolog.Nop())
	srv := NewServer(store, v, checkin.NewScanner(v, zerolog.Nop()), zerolog.Nop())
	return &fixture{router: srv.Router(), store: store, eventID: eventID, guestID: guestID}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postCheckIn(t *testing.T, body string) (int, checkin.Result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/checkin", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(t, req)

	var res checkin.Result
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w.Code, res
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)

	code, res := f.postCheckIn(t, `{"payload":"ID:`+adaCode+`\n","location":"Side door"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, checkin.Success, res.Outcome)
	assert.Equal(t, 2, res.PartySize)

	_, res = f.postCheckIn(t, `{"payload":"`+adaCode+`"}`)
	assert.Equal(t, checkin.AlreadyScannedThisSession, res.Outcome)

	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/session/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, res = f.postCheckIn(t, `{"payload":"`+adaCode+`"}`)
	assert.Equal(t, checkin.AlreadyCheckedIn, res.Outcome)

	_, res = f.postCheckIn(t, `{"payload":"INVITE-9-deadbeef"}`)
	assert.Equal(t, checkin.InvalidCode, res.Outcome)

	code, _ = f.postCheckIn(t, `{"location":"Gate"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	scans, err := f.store.ListScans(context.Background(), f.eventID)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "Side door", scans[0].Location)
}

func TestCheckInImage(t *testing.T) {
	f := newFixture(t)

	upload := func(img image.Image) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "frame.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(part, img))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/checkin/image", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return f.do(t, req)
	}

	code, err := qr.Image(adaCode, 300, color.Black, color.White)
	require.NoError(t, err)
	w := upload(imaging.Paste(imaging.New(400, 400, color.White), code, image.Pt(50, 50)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"success"`)

	w = upload(imaging.New(100, 100, color.White))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"no_code"`)

	req := httptest.NewRequest(http.MethodPost, "/api/checkin/image", nil)
	assert.Equal(t, http.StatusBadRequest, f.do(t, req).Code)
}

func TestEventStats(t *testing.T) {
	f := newFixture(t)
	f.postCheckIn(t, `{"payload":"`+adaCode+`"}`)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/events/1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.EventStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalGuests)
	assert.Equal(t, 3, stats.TotalPeople)
	assert.Equal(t, 1, stats.Present)
	assert.Equal(t, 50.0, stats.AttendanceRate)

	assert.Equal(t, http.StatusNotFound, f.do(t, httptest.NewRequest(http.MethodGet, "/api/events/42/stats", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, httptest.NewRequest(http.MethodGet, "/api/events/abc/stats", nil)).Code)
}

func TestGuestQRCode(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/guests/1/qrcode?size=400", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	payload, err := qr.Decode(img)
	require.NoError(t, err)
	id, err := qr.Extract(payload)
	require.NoError(t, err)
	assert.Equal(t, adaCode, id)

	assert.Equal(t, http.StatusNotFound, f.do(t, httptest.NewRequest(http.MethodGet, "/api/guests/2/qrcode", nil)).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, httptest.NewRequest(http.MethodGet, "/api/guests/99/qrcode", nil)).Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "invitations_http_requests_total")
}

package api

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"event-invitations/internal/qr"
	"event-invitations/internal/storage"
)

type checkInRequest struct {
	Payload  string `json:"payload" binding:"required"`
	Location string `json:"location"`
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// checkIn validates a payload read by an external scanner
func (s *Server) checkIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.validator.ValidateAt(c.Request.Context(), req.Payload, req.Location)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// checkInImage validates the code found in an uploaded photo
func (s *Server) checkInImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image"})
		return
	}

	res, err := s.scanner.ScanImage(c.Request.Context(), img)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) resetSession(c *gin.Context) {
	s.validator.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) eventStats(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if _, err := s.store.GetEvent(c.Request.Context(), id); err != nil {
		s.lookupError(c, err)
		return
	}
	stats, err := s.store.Statistics(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// guestQRCode returns the guest's current code as a PNG, for display on
// a phone when the printed invitation is missing.
func (s *Server) guestQRCode(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	guest, err := s.store.GetGuest(ctx, id)
	if err != nil {
		s.lookupError(c, err)
		return
	}
	if guest.QRCode == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "invitation not generated yet"})
		return
	}
	event, err := s.store.GetEvent(ctx, guest.EventID)
	if err != nil {
		s.lookupError(c, err)
		return
	}

	size := 300
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 50 && v <= 2000 {
		size = v
	}
	img, err := qr.Image(qr.Build(guest.QRCode, *guest, *event), size, color.Black, color.White)
	if err != nil {
		s.internalError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.internalError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) lookupError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.internalError(c, err)
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

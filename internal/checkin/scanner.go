package checkin

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"event-invitations/internal/metrics"
	"event-invitations/internal/qr"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrSourceClosed      = errors.New("frame source is closed")
)

// FrameSource yields frames from a camera-like device. Frame returns
// io.EOF when the source has no more frames.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// OpenFunc acquires a frame source for one scanning session.
type OpenFunc func() (FrameSource, error)

// Handler receives every decoded code with its validation.
type Handler func(payload string, result Result)

type Scanner struct {
	validator *Validator
	log       zerolog.Logger
}

func NewScanner(validator *Validator, log zerolog.Logger) *Scanner {
	return &Scanner{
		validator: validator,
		log:       log.With().Str("component", "Scanner").Logger(),
	}
}

// Run polls frames until ctx is done or the source is exhausted, decoding
// and validating every frame that holds a code. ctx is checked once per
// frame. The source is always closed before Run returns.
func (s *Scanner) Run(ctx context.Context, open OpenFunc, handle Handler) (err error) {
	src, err := open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to release camera: %w", cerr)
		}
	}()

	s.log.Info().Msg("Scanner started")
	defer s.log.Info().Msg("Scanner stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := src.Frame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		metrics.FramesScanned.Inc()

		payload, err := qr.Decode(frame)
		if err != nil {
			continue
		}

		result, err := s.validator.Validate(ctx, payload)
		if err != nil {
			return err
		}
		if handle != nil {
			handle(payload, result)
		}
	}
}

// ScanImage validates the first code found in img.
func (s *Scanner) ScanImage(ctx context.Context, img image.Image) (Result, error) {
	payload, err := qr.Decode(img)
	if err != nil {
		return Result{Outcome: NoCodeDetected, Message: "No QR code detected"}, nil
	}
	return s.validator.Validate(ctx, payload)
}

// ScanFile validates the first code found in the image file at path.
func (s *Scanner) ScanFile(ctx context.Context, path string) (Result, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image: %w", err)
	}
	return s.ScanImage(ctx, img)
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true}

// DirSource replays the images of a directory as frames, in name order.
// It stands in for a camera when frames are captured by another program.
// A following source waits for new files instead of ending.
type DirSource struct {
	dir    string
	follow time.Duration
	log    zerolog.Logger

	mu     sync.Mutex
	files  []string
	done   map[string]bool
	closed bool
}

// OpenDir returns an OpenFunc over the images currently in dir.
func OpenDir(dir string, log zerolog.Logger) OpenFunc {
	return FollowDir(dir, 0, log)
}

// FollowDir returns an OpenFunc over the images of dir that polls every
// interval for new ones until the scan is cancelled. A zero interval
// ends the stream once the directory is exhausted.
func FollowDir(dir string, interval time.Duration, log zerolog.Logger) OpenFunc {
	return func() (FrameSource, error) {
		src := &DirSource{dir: dir, follow: interval, log: log, done: make(map[string]bool)}
		if err := src.refresh(); err != nil {
			return nil, err
		}
		return src, nil
	}
}

// refresh queues the images not seen yet. Callers hold mu, except on open.
func (d *DirSource) refresh() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}
	var fresh []string
	for _, e := range entries {
		path := filepath.Join(d.dir, e.Name())
		if e.IsDir() || d.done[path] || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fresh = append(fresh, path)
	}
	sort.Strings(fresh)
	d.files = append(d.files, fresh...)
	return nil
}

func (d *DirSource) Frame(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.closed {
			return nil, ErrSourceClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(d.files) == 0 {
			if d.follow <= 0 {
				return nil, io.EOF
			}
			if err := d.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}
		path := d.files[0]
		d.files = d.files[1:]
		d.done[path] = true

		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			d.log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable frame")
			continue
		}
		return img, nil
	}
}

// wait sleeps one poll interval without holding mu, then rescans.
func (d *DirSource) wait(ctx context.Context) error {
	d.mu.Unlock()
	t := time.NewTimer(d.follow)
	select {
	case <-ctx.Done():
		t.Stop()
		d.mu.Lock()
		return ctx.Err()
	case <-t.C:
	}
	d.mu.Lock()
	if d.closed {
		return ErrSourceClosed
	}
	if err := d.refresh(); err != nil {
		d.log.Warn().Err(err).Str("dir", d.dir).Msg("Failed to list frames")
	}
	return nil
}

func (d *DirSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

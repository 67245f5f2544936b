// Package api exposes check-in at the door over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"event-invitations/internal/checkin"
	"event-invitations/internal/metrics"
	"event-invitations/internal/models"
)

// Store is the part of the store read by the API.
type Store interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	Statistics(ctx context.Context, eventID int64) (*models.EventStats, error)
}

type Server struct {
	store     Store
	validator *checkin.Validator
	scanner   *checkin.Scanner
	log       zerolog.Logger
}

func NewServer(store Store, validator *checkin.Validator, scanner *checkin.Scanner, log zerolog.Logger) *Server {
	return &Server{
		store:     store,
		validator: validator,
		scanner:   scanner,
		log:       log.With().Str("component", "API").Logger(),
	}
}

// Router builds the gin engine serving every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	s.RegisterRoutes(r)
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())

		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("Request")
	}
}

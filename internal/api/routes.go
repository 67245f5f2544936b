package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", health)
		api.POST("/checkin", s.checkIn)
		api.POST("/checkin/image", s.checkInImage)
		api.POST("/session/reset", s.resetSession)
		api.GET("/events/:id/stats", s.eventStats)
		api.GET("/guests/:id/qrcode", s.guestQRCode)
	}
}

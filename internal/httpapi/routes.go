package httpapi

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *Server) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/api/v1/tiers", s.listTiers)
	s.router.GET("/api/v1/tiers/:tier", s.getTier)
	s.router.GET("/api/v1/alerts", s.listAlerts)
	s.router.GET("/api/v1/notifications", s.listNotifications)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
}

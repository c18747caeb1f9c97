package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/treenet/internal/auth"
	"github.com/danmuck/treenet/internal/peer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// commandRequest is the POST /commands body.
type commandRequest struct {
	Command string `json:"command" binding:"required"`
	Text    string `json:"text"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		role := "peer"
		if s.ctl.IsRoot() {
			role = "root"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"node":    s.cfg.Node,
			"role":    role,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ctl.Status())
	})

	s.router.GET("/topology", func(c *gin.Context) {
		nodes, err := s.ctl.Topology()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, peer.ErrNotRoot) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodes": nodes})
	})

	guard := []gin.HandlerFunc{}
	if s.cfg.Token != "" {
		guard = append(guard, auth.Require(auth.StaticToken{Token: s.cfg.Token}))
	}
	s.router.POST("/commands", append(guard, s.submitCommand)...)
}

func (s *Server) submitCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd, err := peer.NewCommand(req.Command, req.Text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctl.Submit(cmd); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, peer.ErrCommandQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.log.Info().Str("command", cmd.Kind.String()).Msg("command queued")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "command": cmd.Kind.String()})
}

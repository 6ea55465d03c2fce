package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/models"
)

// GroupStatus is one group with its stored part counts.
type GroupStatus struct {
	*models.Group
	Parts    int64 `json:"parts"`
	Segments int64 `json:"segments"`
}

// GET /api/v1/groups?active=1
func (s *WebServer) listGroups(c *gin.Context) {
	activeOnly := c.Query("active") == "1" || c.Query("active") == "true"
	groups, err := s.Store.ListGroups(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if groups == nil {
		groups = []*models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "count": len(groups)})
}

// GET /api/v1/groups/:group
func (s *WebServer) getGroup(c *gin.Context) {
	name := c.Param("group")
	g, err := s.Store.GetGroup(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	stats, err := s.Store.GroupPartStats(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, GroupStatus{Group: g, Parts: stats.Parts, Segments: stats.Segments})
}

// GET /api/v1/stats
func (s *WebServer) getStats(c *gin.Context) {
	resp := gin.H{
		"version":  config.AppVersion,
		"uptime":   time.Since(s.StartTime).Truncate(time.Second).String(),
		"counters": s.Counters.Snapshot(),
	}
	if s.Pool != nil {
		resp["pool"] = s.Pool.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

// Package controlplane exposes a small HTTP surface for operating the bot:
// reading engine status, pausing/resuming trigger evaluation and browsing
// the recorded history. It never mutates strategy parameters at runtime.
package controlplane

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/betbot/crasher/internal/engine"
	"github.com/betbot/crasher/internal/outcomelog"
)

const defaultHistoryLimit = 50

type Server struct {
	engine *engine.Engine
	store  *outcomelog.Store
	events *EventLog
}

func New(eng *engine.Engine, store *outcomelog.Store, events *EventLog) *Server {
	return &Server{engine: eng, store: store, events: events}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/engine/start", s.handleEngineStart)
	api.POST("/engine/stop", s.handleEngineStop)
	api.GET("/sessions", s.handleSessionsList)
	api.GET("/outcomes", s.handleOutcomesList)
	api.GET("/bets", s.handleBetsList)
	api.GET("/events", s.handleEventsList)

	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleEngineStart(c *gin.Context) {
	s.engine.Start()
	c.JSON(http.StatusOK, gin.H{"stopped": false})
}

func (s *Server) handleEngineStop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (s *Server) handleSessionsList(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleOutcomesList(c *gin.Context) {
	snap := s.engine.Status()
	outcomes, err := s.store.RecentWindow(c.Request.Context(), snap.SessionID, limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcomes)
}

func (s *Server) handleBetsList(c *gin.Context) {
	snap := s.engine.Status()
	bets, err := s.store.ListBets(c.Request.Context(), snap.SessionID, limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bets)
}

func (s *Server) handleEventsList(c *gin.Context) {
	c.JSON(http.StatusOK, s.events.Entries())
}

func limitParam(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultHistoryLimit
}

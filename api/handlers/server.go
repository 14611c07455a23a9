// Package handlers contains the gin HTTP handlers for the console backend.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/console"
	"github.com/craft-console/backend/internal/model"
	"github.com/craft-console/backend/internal/repository"
	"github.com/craft-console/backend/internal/supervisor"
)

// ServerHandler exposes supervisor operations and run history over HTTP.
type ServerHandler struct {
	sup        *supervisor.Supervisor
	runs       *repository.RunRepository
	scrollback *console.Buffer
	log        *zap.SugaredLogger
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(sup *supervisor.Supervisor, runs *repository.RunRepository, scrollback *console.Buffer, log *zap.SugaredLogger) *ServerHandler {
	return &ServerHandler{
		sup:        sup,
		runs:       runs,
		scrollback: scrollback,
		log:        log,
	}
}

// RegisterRoutes registers the server routes on the given router group.
func (h *ServerHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/start", h.Start)
	r.POST("/stop", h.Stop)
	r.GET("/status", h.Status)
	r.GET("/console", h.Console)
	r.GET("/runs", h.Runs)
}

// startRequest optionally overrides the configured command and working
// directory for a single run.
type startRequest struct {
	Command string `json:"command"`
	Workdir string `json:"workdir"`
}

// Start handles POST /start.
func (h *ServerHandler) Start(c *gin.Context) {
	var override *supervisor.StartOverride

	var req startRequest
	if err := c.ShouldBindJSON(&req); err == nil && (req.Command != "" || req.Workdir != "") {
		override = &supervisor.StartOverride{
			Command: req.Command,
			Workdir: req.Workdir,
		}
	}

	if err := h.sup.Start(c.Request.Context(), override); err != nil {
		h.log.Errorw("start failed", "error", err)
		c.String(http.StatusInternalServerError, "Error starting server: %v", err)
		return
	}
	c.String(http.StatusOK, "Game server started.")
}

// Stop handles POST /stop.
func (h *ServerHandler) Stop(c *gin.Context) {
	if err := h.sup.Stop(c.Request.Context()); err != nil {
		h.log.Errorw("stop failed", "error", err)
		c.String(http.StatusInternalServerError, "Error stopping server: %v", err)
		return
	}
	c.String(http.StatusOK, "Game server stopped.")
}

// Status handles GET /status.
func (h *ServerHandler) Status(c *gin.Context) {
	if h.sup.IsRunning() {
		c.String(http.StatusOK, "Game server is running.")
		return
	}
	c.String(http.StatusOK, "Game server is not running.")
}

// Console handles GET /console, returning the recent scrollback lines.
func (h *ServerHandler) Console(c *gin.Context) {
	lines := h.scrollback.Lines()
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// Runs handles GET /runs, returning recent run history.
func (h *ServerHandler) Runs(c *gin.Context) {
	runs, err := h.runs.List(c.Request.Context(), 50)
	if err != nil {
		h.log.Errorw("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

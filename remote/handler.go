// Package remote exposes a player over HTTP.
package remote

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/player"
	"github.com/rabidaudio/cdz-nuts/stream"
)

// Player is the part of player.Controller driven by the remote.
type Player interface {
	Load(path string) error
	Eject()
	Play()
	Pause()
	Stop()
	TogglePlayback()
	NextTrack()
	PreviousTrack()
	NextIndex(changeTrack bool)
	PreviousIndex(changeTrack bool)
	FastForward()
	Rewind()
	Seek(sector uint64)
	SetVolume(v int)
	SetRepeatMode(r player.RepeatMode)
	SetDeEmphasis(enabled bool)
	Initialized() bool
	Tracks() []disc.Track
	Status() player.Status
}

var _ Player = (*player.Controller)(nil)

var errNoDisc = errors.New("no disc loaded")

type Handler struct {
	player Player
	logger *log.Logger
}

func NewHandler(p Player, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{player: p, logger: logger}
}

// NewRouter builds the gin engine serving the remote API under /api/v1.
// Browsers on allowOrigins may call the API cross-origin.
func NewRouter(p Player, logger *log.Logger, allowOrigins ...string) *gin.Engine {
	h := NewHandler(p, logger)

	router := gin.New()
	router.Use(gin.Recovery(), h.logRequests)
	if len(allowOrigins) > 0 {
		config := cors.DefaultConfig()
		config.AllowOrigins = allowOrigins
		config.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
		config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		router.Use(cors.New(config))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.Status)
		api.GET("/tracks", h.Tracks)

		api.POST("/load", h.Load)
		api.POST("/eject", h.command(p.Eject, false))

		api.POST("/play", h.command(p.Play, true))
		api.POST("/pause", h.command(p.Pause, true))
		api.POST("/toggle", h.command(p.TogglePlayback, true))
		api.POST("/stop", h.command(p.Stop, true))

		api.POST("/track/next", h.command(p.NextTrack, true))
		api.POST("/track/previous", h.command(p.PreviousTrack, true))
		api.POST("/index/next", h.command(func() { p.NextIndex(true) }, true))
		api.POST("/index/previous", h.command(func() { p.PreviousIndex(true) }, true))
		api.POST("/forward", h.command(p.FastForward, true))
		api.POST("/rewind", h.command(p.Rewind, true))
		api.POST("/seek", h.Seek)

		api.PUT("/volume", h.Volume)
		api.PUT("/repeat", h.Repeat)
		api.PUT("/deemphasis", h.DeEmphasis)
	}
	return router
}

func (h *Handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"took", time.Since(start))
}

func (h *Handler) fail(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: err.Error()})
}

func (h *Handler) respond(c *gin.Context) {
	c.JSON(http.StatusOK, newStatusResponse(h.player.Status()))
}

// command wraps a parameterless player command. Commands that need a disc
// answer 409 Conflict when none is loaded.
func (h *Handler) command(fn func(), needsDisc bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if needsDisc && !h.player.Initialized() {
			h.fail(c, http.StatusConflict, errNoDisc)
			return
		}
		fn()
		h.respond(c)
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"disc":   h.player.Initialized(),
	})
}

func (h *Handler) Status(c *gin.Context) {
	h.respond(c)
}

func (h *Handler) Tracks(c *gin.Context) {
	if !h.player.Initialized() {
		h.fail(c, http.StatusConflict, errNoDisc)
		return
	}
	tracks := h.player.Tracks()
	resp := make([]TrackResponse, len(tracks))
	for i, t := range tracks {
		resp[i] = newTrackResponse(t)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Load(c *gin.Context) {
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.player.Load(req.Path); err != nil {
		h.logger.Warn("remote load failed", "path", req.Path, "err", err)
		h.fail(c, http.StatusUnprocessableEntity, err)
		return
	}
	h.respond(c)
}

func (h *Handler) Seek(c *gin.Context) {
	if !h.player.Initialized() {
		h.fail(c, http.StatusConflict, errNoDisc)
		return
	}
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	switch {
	case req.Sector != nil:
		h.player.Seek(*req.Sector)
	case req.Time != "":
		m, err := disc.ParseMSF(req.Time)
		if err != nil {
			h.fail(c, http.StatusBadRequest, err)
			return
		}
		h.player.Seek(m.Sector())
	default:
		h.fail(c, http.StatusBadRequest, errors.New("sector or time is required"))
		return
	}
	h.respond(c)
}

func (h *Handler) Volume(c *gin.Context) {
	var req VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	h.player.SetVolume(*req.Volume)
	h.respond(c)
}

func (h *Handler) Repeat(c *gin.Context) {
	var req RepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	mode, ok := stream.ParseRepeatMode(req.Mode)
	if !ok {
		h.fail(c, http.StatusBadRequest, errors.New("mode must be one of none, single, all"))
		return
	}
	h.player.SetRepeatMode(mode)
	h.respond(c)
}

func (h *Handler) DeEmphasis(c *gin.Context) {
	var req DeEmphasisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	h.player.SetDeEmphasis(*req.Enabled)
	h.respond(c)
}

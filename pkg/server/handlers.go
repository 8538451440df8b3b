package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
	"github.com/emortalmc/live-config-parser/pkg/version"
)

// GameModeProvider is the game mode view the handlers read from.
type GameModeProvider = liveconfig.ConfigProvider[*configs.GameModeConfig]

// watchBufferSize is the number of updates buffered per watch client before updates are dropped.
const watchBufferSize = 64

// Handler serves the game mode API. A nil provider means game modes are disabled.
type Handler struct {
	provider GameModeProvider
	version  version.Info
	logger   *zap.SugaredLogger
}

// NewHandler creates a new game mode handler
func NewHandler(provider GameModeProvider, info version.Info, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		provider: provider,
		version:  info,
		logger:   logger,
	}
}

func errorResponse(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	})
}

func (h *Handler) disabled(c *gin.Context) bool {
	if h.provider != nil {
		return false
	}
	errorResponse(c, http.StatusServiceUnavailable, "disabled", "game modes are disabled")
	return true
}

// HealthHandler reports that the process is alive
func (h *Handler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadyHandler reports whether game modes are being served
func (h *Handler) ReadyHandler(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"count":  len(h.provider.AllConfigs()),
	})
}

// VersionHandler returns the resolved version
func (h *Handler) VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.version)
}

// ListHandler returns every live game mode
func (h *Handler) ListHandler(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	list := h.provider.AllConfigs()
	c.JSON(http.StatusOK, gin.H{
		"configs": list,
		"count":   len(list),
	})
}

// GetHandler returns a single game mode by id
func (h *Handler) GetHandler(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	id := c.Param("id")
	cfg, ok := h.provider.GetConfig(id)
	if !ok {
		errorResponse(c, http.StatusNotFound, "not_found", liveconfig.ErrConfigNotFound.Error()+": "+id)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// watchEvent is the data of a server-sent update event.
type watchEvent struct {
	FileName string                  `json:"fileName"`
	Config   *configs.GameModeConfig `json:"config"`
	Previous *configs.GameModeConfig `json:"previous,omitempty"`
}

// watchView is the set of configs a watch client has been sent. Updates dispatched
// between listener registration and the snapshot are seen twice; the view drops the
// ones it already reflects.
type watchView map[string]*configs.GameModeConfig

func newWatchView(snapshot []*configs.GameModeConfig) watchView {
	view := make(watchView, len(snapshot))
	for _, cfg := range snapshot {
		view[cfg.ID] = cfg
	}
	return view
}

// apply records update and reports whether it has to be sent.
func (v watchView) apply(update liveconfig.ConfigUpdate[*configs.GameModeConfig]) bool {
	switch update.Type {
	case liveconfig.UpdateTypeDelete:
		if v[update.Config.ID] != update.Config {
			return false
		}
		delete(v, update.Config.ID)
		return true
	default:
		if v[update.Config.ID] == update.Config {
			return false
		}
		if update.Previous != nil && update.Previous.ID != update.Config.ID && v[update.Previous.ID] == update.Previous {
			delete(v, update.Previous.ID)
		}
		v[update.Config.ID] = update.Config
		return true
	}
}

// WatchHandler streams game mode updates as server-sent events. Every live game mode is
// sent as a create event first.
func (h *Handler) WatchHandler(c *gin.Context) {
	if h.disabled(c) {
		return
	}

	clientIP := c.ClientIP()
	updates := make(chan liveconfig.ConfigUpdate[*configs.GameModeConfig], watchBufferSize)
	remove := h.provider.AddGlobalUpdateListener(func(update liveconfig.ConfigUpdate[*configs.GameModeConfig]) {
		select {
		case updates <- update:
		default:
			h.logger.Warnw("Watch client too slow, dropping update", "configId", update.Config.ID, "client", clientIP)
		}
	})
	defer remove()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	snapshot := h.provider.AllConfigs()
	view := newWatchView(snapshot)
	for _, cfg := range snapshot {
		c.SSEvent(liveconfig.UpdateTypeCreate.String(), watchEvent{FileName: cfg.FileName, Config: cfg})
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if !view.apply(update) {
				continue
			}
			c.SSEvent(update.Type.String(), watchEvent{
				FileName: update.FileName,
				Config:   update.Config,
				Previous: update.Previous,
			})
			c.Writer.Flush()
		}
	}
}

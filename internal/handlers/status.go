package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/status"
	"github.com/orpheus-edu/orpheus-core/internal/types"
)

type StatusHandler struct {
	log      *logger.Logger
	store    *status.Store
	upgrader websocket.Upgrader
}

func NewStatusHandler(log *logger.Logger, store *status.Store) *StatusHandler {
	return &StatusHandler{
		log:   log.With("handler", "StatusHandler"),
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The deployment fronts the core with its own origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// GET /status/:promptId
// Returns the current record, a fresh one for unknown ids.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	RespondOK(c, h.store.Get(c.Param("promptId")))
}

// PATCH /status/:promptId/update
func (h *StatusHandler) PatchStatus(c *gin.Context) {
	promptID := c.Param("promptId")

	var patch types.StatusPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_patch", err)
		return
	}

	h.store.Update(promptID, patch)
	c.JSON(http.StatusNonAuthoritativeInfo, h.store.Get(promptID))
}

// GET /status/:promptId/live (WebSocket)
// Emits the current record on connect and again after every update. The
// subscription is dropped when the peer disconnects or a write fails.
func (h *StatusHandler) LiveStatus(c *gin.Context) {
	promptID := c.Param("promptId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "prompt_id", promptID, "error", err)
		return
	}

	ref := uuid.NewString()
	log := h.log.With("prompt_id", promptID, "reference", ref)

	// Writes are serialized: the store invokes callbacks under its mutex.
	h.store.Subscribe(promptID, ref, func(st types.Status) error {
		return conn.WriteJSON(st)
	})
	log.Debug("status subscriber connected")

	// Reader loop exists only to observe the peer closing the socket.
	go func() {
		defer func() {
			h.store.Unsubscribe(promptID, ref)
			_ = conn.Close()
			log.Debug("status subscriber disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

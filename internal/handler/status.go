package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teleraid/internal/message_store"
	"teleraid/internal/raid_store"
)

// StatusHandler exposes read-only views of the in-memory registries.
type StatusHandler struct {
	raids    *raid_store.Store
	messages *message_store.Store
}

func NewStatusHandler(raids *raid_store.Store, messages *message_store.Store) *StatusHandler {
	return &StatusHandler{raids: raids, messages: messages}
}

func (h *StatusHandler) ListRaids(c *gin.Context) {
	raids := h.raids.Snapshot()
	c.JSON(http.StatusOK, gin.H{"count": len(raids), "raids": raids})
}

func (h *StatusHandler) ListMessages(c *gin.Context) {
	records := h.messages.Snapshot()
	c.JSON(http.StatusOK, gin.H{"count": len(records), "messages": records})
}

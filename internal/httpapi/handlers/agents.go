package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"persona-chat/internal/common"
)

func (h *Handler) ListAgents(c *gin.Context) {
	common.OK(c, gin.H{"agents": h.Personas.List()})
}

func (h *Handler) GetAgent(c *gin.Context) {
	p, ok := h.Personas.Get(c.Param("agent_id"))
	if !ok {
		common.Fail(c, http.StatusNotFound, "AGENT_NOT_FOUND", "unknown agent")
		return
	}
	common.OK(c, gin.H{"agent": p})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type AskRequest struct {
	Message string `json:"message"`
}

// --- POST: /api/ask ---
func (h *Handler) AskAI(c *gin.Context) {
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}

	response, err := h.Assistant.Ask(c.Request.Context(), req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": response})
}

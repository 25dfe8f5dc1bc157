package handlers

import (
	"github.com/gin-gonic/gin"

	"echoclicker/internal/codec"
	"echoclicker/internal/models"
	"echoclicker/pkg/response"
)

type pageRequest struct {
	PageID models.PageID `json:"page_id" binding:"required"`
}

func (h *Handler) StartRecording(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.coord.StartRecording(c.Request.Context(), req.PageID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "recording started", h.coord.GetState())
}

// StopRecording returns the recorded actions and their script text.
func (h *Handler) StopRecording(c *gin.Context) {
	actions, err := h.coord.StopRecording(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	if actions == nil {
		actions = []models.Action{}
	}
	response.SuccessWithMessage(c, "recording stopped", gin.H{
		"actions": actions,
		"script":  codec.Format(actions),
	})
}

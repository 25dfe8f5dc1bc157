package handlers

import (
	"github.com/gin-gonic/gin"

	"echoclicker/internal/models"
	"echoclicker/pkg/response"
)

func (h *Handler) EnterSelectionMode(c *gin.Context) {
	var req struct {
		PageID  models.PageID           `json:"page_id" binding:"required"`
		Variant models.SelectionVariant `json:"variant"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.coord.EnterSelectionMode(c.Request.Context(), req.PageID, req.Variant); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "selection mode entered", nil)
}

// StartAutoClicker falls back to the selected target when options carry none.
func (h *Handler) StartAutoClicker(c *gin.Context) {
	var req struct {
		PageID  models.PageID           `json:"page_id" binding:"required"`
		Options models.AutoClickOptions `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.coord.StartAutoClicker(c.Request.Context(), req.PageID, req.Options); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "auto-clicker started", h.coord.GetState())
}

func (h *Handler) StopAutoClicker(c *gin.Context) {
	if err := h.coord.StopAutoClicker(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "auto-clicker stopped", h.coord.GetState())
}

func (h *Handler) GetSchedules(c *gin.Context) {
	response.Success(c, h.schedules.List())
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var req struct {
		ScriptName     string        `json:"script_name" binding:"required"`
		PageID         models.PageID `json:"page_id" binding:"required"`
		CronExpression string        `json:"cron_expression" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sch, err := h.schedules.Add(c.Request.Context(), models.Schedule{
		ScriptName:     req.ScriptName,
		PageID:         req.PageID,
		CronExpression: req.CronExpression,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "schedule created", sch)
}

func (h *Handler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.Remove(c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "schedule deleted", nil)
}

package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"echoclicker/internal/codec"
	"echoclicker/internal/models"
	"echoclicker/pkg/response"
)

type executeRequest struct {
	PageID  models.PageID   `json:"page_id" binding:"required"`
	Actions []models.Action `json:"actions"`
	Script  string          `json:"script"`
}

type scriptBody struct {
	Text    string          `json:"text"`
	Actions []models.Action `json:"actions"`
}

// parsed is what every endpoint taking script text answers with.
type parsed struct {
	Actions     []models.Action   `json:"actions"`
	Diagnostics codec.Diagnostics `json:"diagnostics,omitempty"`
}

func parseScript(text string) parsed {
	actions, diags := codec.Parse(text)
	if actions == nil {
		actions = []models.Action{}
	}
	return parsed{Actions: actions, Diagnostics: diags}
}

// ExecuteScript replays actions, or the parsed script text when given. Lines
// that fail to parse are skipped and reported next to the outcome.
func (h *Handler) ExecuteScript(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p := parsed{Actions: req.Actions}
	if req.Script != "" {
		p = parseScript(req.Script)
	}
	h.execute(c, req.PageID, p)
}

func (h *Handler) execute(c *gin.Context, page models.PageID, p parsed) {
	if len(p.Actions) == 0 {
		if err := p.Diagnostics.Err(); err != nil {
			response.ErrorWithData(c, err, p)
			return
		}
		response.FromError(c, fmt.Errorf("%w: no actions to execute", models.ErrInvalidRequest))
		return
	}
	if err := models.ValidateActions(p.Actions); err != nil {
		response.FromError(c, err)
		return
	}

	out, err := h.coord.ExecuteScript(c.Request.Context(), page, p.Actions)
	if err != nil {
		response.ErrorWithData(c, err, gin.H{"outcome": out})
		return
	}
	data := gin.H{"outcome": out, "diagnostics": p.Diagnostics}
	if !out.OK() {
		response.Failure(c, out.Kind, out.Message, data)
		return
	}
	response.Success(c, data)
}

func (h *Handler) ParseScript(c *gin.Context) {
	var req struct {
		Script string `json:"script"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, parseScript(req.Script))
}

func (h *Handler) FormatScript(c *gin.Context) {
	var req struct {
		Actions []models.Action `json:"actions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := models.ValidateActions(req.Actions); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"script": codec.Format(req.Actions)})
}

func (h *Handler) GetScripts(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) GetScript(c *gin.Context) {
	script, err := h.store.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"script": script, "parsed": parseScript(script.Text)})
}

// SaveScript stores text as is, or formats actions when no text is given.
// Text in which no line parses is refused.
func (h *Handler) SaveScript(c *gin.Context) {
	var req scriptBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	text := req.Text
	if text == "" {
		if err := models.ValidateActions(req.Actions); err != nil {
			response.FromError(c, err)
			return
		}
		text = codec.Format(req.Actions)
	}
	p := parseScript(text)
	if len(p.Actions) == 0 {
		err := p.Diagnostics.Err()
		if err == nil {
			err = fmt.Errorf("%w: script has no actions", models.ErrInvalidRequest)
		}
		response.ErrorWithData(c, err, p)
		return
	}

	script, err := h.store.Save(c.Request.Context(), c.Param("name"), text)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "script saved", gin.H{"script": script, "parsed": p})
}

func (h *Handler) DeleteScript(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "script deleted", nil)
}

// RunScript replays a stored script on a page.
func (h *Handler) RunScript(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	script, err := h.store.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.execute(c, req.PageID, parseScript(script.Text))
}

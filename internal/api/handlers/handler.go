package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"echoclicker/internal/broadcast"
	"echoclicker/internal/models"
	"echoclicker/pkg/chrome"
	"echoclicker/pkg/response"
	"echoclicker/pkg/store"
)

// Coordinator is the automation core the handlers drive.
type Coordinator interface {
	GetState() models.AutomationState
	StartRecording(ctx context.Context, page models.PageID) error
	StopRecording(ctx context.Context) ([]models.Action, error)
	ExecuteScript(ctx context.Context, page models.PageID, actions []models.Action) (models.Outcome, error)
	EnterSelectionMode(ctx context.Context, page models.PageID, variant models.SelectionVariant) error
	StartAutoClicker(ctx context.Context, page models.PageID, opts models.AutoClickOptions) error
	StopAutoClicker(ctx context.Context) error
	Dispatch(ctx context.Context, req models.Request) models.Response
}

// Browser lists and opens tabs.
type Browser interface {
	Pages(ctx context.Context) ([]chrome.PageInfo, error)
	NewPage(ctx context.Context, url string) (string, error)
	Emulate(ctx context.Context, id, device string) error
}

// Schedules manages cron-triggered replays.
type Schedules interface {
	Add(ctx context.Context, sch models.Schedule) (models.Schedule, error)
	Remove(id string) error
	List() []models.Schedule
}

type Handler struct {
	coord     Coordinator
	browser   Browser
	store     store.Store
	schedules Schedules
	hub       *broadcast.Hub
	logger    *zap.Logger
}

func New(coord Coordinator, browser Browser, st store.Store, schedules Schedules, hub *broadcast.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		coord:     coord,
		browser:   browser,
		store:     st,
		schedules: schedules,
		hub:       hub,
		logger:    logger.Named("api"),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetState(c *gin.Context) {
	response.Success(c, h.coord.GetState())
}

func (h *Handler) GetPages(c *gin.Context) {
	pages, err := h.browser.Pages(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pages)
}

func (h *Handler) GetDevices(c *gin.Context) {
	response.Success(c, chrome.DeviceNames())
}

// CreatePage opens a tab, optionally emulating one of the known devices.
func (h *Handler) CreatePage(c *gin.Context) {
	var req struct {
		URL    string `json:"url" binding:"required"`
		Device string `json:"device"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Device != "" {
		if _, ok := chrome.LookupDevice(req.Device); !ok {
			response.FromError(c, fmt.Errorf("%w: unknown device %q", models.ErrInvalidRequest, req.Device))
			return
		}
	}

	ctx := c.Request.Context()
	id, err := h.browser.NewPage(ctx, req.URL)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if req.Device != "" {
		if err := h.browser.Emulate(ctx, id, req.Device); err != nil {
			h.logger.Warn("Device emulation failed", zap.String("page", id), zap.Error(err))
		}
	}
	response.Success(c, gin.H{"id": id, "url": req.URL, "device": req.Device})
}

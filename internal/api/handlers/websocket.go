package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echoclicker/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// requestQueue bounds how many requests one client may pipeline before the
// read loop stops reading.
const requestQueue = 64

// WebSocket streams broadcasts to the client and answers Request messages
// with a Response carrying the same id. Requests from one client are
// dispatched in the order they arrive; only a replay, which changes no state,
// is answered from its own goroutine so it does not hold up the socket. The
// current state is sent first.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Register(conn)
	st := h.coord.GetState()
	client.Send(models.Event{Name: models.MsgStateChanged, State: &st})

	ctx, cancel := context.WithCancel(context.Background())
	reqs := make(chan models.Request, requestQueue)
	var wg sync.WaitGroup
	defer func() {
		close(reqs)
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for req := range reqs {
			if req.Action == models.MsgExecuteScript {
				wg.Add(1)
				go func(req models.Request) {
					defer wg.Done()
					client.Send(h.coord.Dispatch(ctx, req))
				}(req)
				continue
			}
			client.Send(h.coord.Dispatch(ctx, req))
		}
	}()

	client.ReadLoop(func(msg []byte) {
		var req models.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			client.Send(models.ErrorResponse(fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)))
			return
		}
		reqs <- req
	})
}

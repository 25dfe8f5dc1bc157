package coordinator

import (
	"context"
	"fmt"

	"echoclicker/internal/codec"
	"echoclicker/internal/models"
)

// Dispatch routes a request in message form to the matching operation.
func (c *Coordinator) Dispatch(ctx context.Context, req models.Request) models.Response {
	resp := c.dispatch(ctx, req)
	resp.ID = req.ID
	return resp
}

func (c *Coordinator) dispatch(ctx context.Context, req models.Request) models.Response {
	switch req.Action {
	case models.MsgGetState:
		st := c.GetState()
		resp := models.OKResponse()
		resp.State = &st
		return resp

	case models.MsgStartRecording:
		return result(c.StartRecording(ctx, req.PageID))

	case models.MsgStopRecording:
		actions, err := c.StopRecording(ctx)
		if err != nil {
			return models.ErrorResponse(err)
		}
		resp := models.OKResponse()
		resp.Actions = actions
		return resp

	case models.MsgExecuteScript:
		actions := req.Actions
		var diags codec.Diagnostics
		if req.Script != "" {
			actions, diags = codec.Parse(req.Script)
		}
		if len(actions) == 0 {
			if err := diags.Err(); err != nil {
				return models.ErrorResponse(err)
			}
			return models.ErrorResponse(fmt.Errorf("%w: no actions to execute", models.ErrInvalidRequest))
		}
		out, err := c.ExecuteScript(ctx, req.PageID, actions)
		if err != nil {
			return models.ErrorResponse(err)
		}
		resp := models.Response{Status: out.Status, Kind: out.Kind, Message: out.Message, Outcome: &out}
		if err := diags.Err(); err != nil && out.OK() {
			resp.Message = "skipped lines: " + err.Error()
		}
		return resp

	case models.MsgEnterSelectionMode:
		return result(c.EnterSelectionMode(ctx, req.PageID, req.Variant))

	case models.MsgStartAutoClicker:
		var opts models.AutoClickOptions
		if req.Options != nil {
			opts = *req.Options
		}
		return result(c.StartAutoClicker(ctx, req.PageID, opts))

	case models.MsgStopAutoClicker:
		return result(c.StopAutoClicker(ctx))

	default:
		return models.ErrorResponse(fmt.Errorf("%w: unknown action %q", models.ErrInvalidRequest, req.Action))
	}
}

func result(err error) models.Response {
	if err != nil {
		return models.ErrorResponse(err)
	}
	return models.OKResponse()
}

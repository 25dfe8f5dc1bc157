// Package agent hosts the per-page half of the system: the injected page
// script and the Go logic (recorder, picker, auto-clicker, replay) that
// drives it.
package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"echoclicker/internal/autoclick"
	"echoclicker/internal/coordinator"
	"echoclicker/internal/models"
	"echoclicker/internal/recorder"
	"echoclicker/internal/replay"
	"echoclicker/internal/selection"
)

// BindingName is the page function the script reports through.
const BindingName = "__echoEmit"

const handlerTimeout = 5 * time.Second

// Driver is everything the agent needs from the page.
type Driver interface {
	Ping(ctx context.Context) error
	recorder.Hooks
	selection.Overlay
	autoclick.Clicker
	replay.Page
}

type Config struct {
	ElementTimeout time.Duration
}

// message is what the page script sends through the binding.
type message struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type Agent struct {
	page      models.PageID
	driver    Driver
	notifier  coordinator.Notifier
	recorder  *recorder.Recorder
	selection *selection.Controller
	scheduler *autoclick.Scheduler
	engine    *replay.Engine
	closed    atomic.Bool
	logger    *zap.Logger
}

func New(page models.PageID, driver Driver, notifier coordinator.Notifier, cfg Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("page", string(page)))

	a := &Agent{
		page:     page,
		driver:   driver,
		notifier: notifier,
		logger:   logger.Named("agent"),
	}
	a.selection = selection.NewController(driver, a.targetSelected, a.selectionCancelled, logger)
	a.recorder = recorder.New(driver, a.actionRecorded, a.selection.IsActive, logger)
	a.scheduler = autoclick.NewScheduler(driver, a.autoClickerState, logger)
	a.engine = replay.NewEngine(driver, cfg.ElementTimeout, logger)
	return a
}

func (a *Agent) StartRecording(ctx context.Context) error {
	if err := a.driver.Ping(ctx); err != nil {
		return err
	}
	return a.recorder.Start(ctx)
}

func (a *Agent) StopRecording(ctx context.Context) error {
	if err := a.driver.Ping(ctx); err != nil {
		return err
	}
	return a.recorder.Stop(ctx)
}

func (a *Agent) ExecuteScript(ctx context.Context, actions []models.Action) (models.Outcome, error) {
	if err := a.driver.Ping(ctx); err != nil {
		return models.FailedOutcome(err), err
	}
	return a.engine.Execute(ctx, actions), nil
}

func (a *Agent) EnterSelectionMode(ctx context.Context, variant models.SelectionVariant) error {
	if err := a.driver.Ping(ctx); err != nil {
		return err
	}
	return a.selection.Enter(ctx, variant)
}

func (a *Agent) StartAutoClicker(ctx context.Context, opts models.AutoClickOptions) error {
	if err := a.driver.Ping(ctx); err != nil {
		return err
	}
	return a.scheduler.Start(opts)
}

// StopAutoClicker stops the loop even when the page no longer answers.
func (a *Agent) StopAutoClicker(ctx context.Context) error {
	a.scheduler.Stop()
	return nil
}

// Close stops everything without reporting upward. Page-side teardown is
// best effort since the page may already be gone.
func (a *Agent) Close(ctx context.Context) {
	if a.closed.Swap(true) {
		return
	}
	a.scheduler.Stop()
	a.selection.Abort(ctx)
	if err := a.recorder.Stop(ctx); err != nil {
		a.logger.Debug("Recorder detach failed", zap.Error(err))
	}
	a.logger.Debug("Agent closed")
}

// HandleMessage processes one binding payload from the page script.
func (a *Agent) HandleMessage(payload string) {
	if a.closed.Load() {
		return
	}
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		a.logger.Warn("Malformed page message", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch msg.Kind {
	case "record":
		var c recorder.Captured
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			a.logger.Warn("Malformed capture", zap.Error(err))
			return
		}
		a.recorder.Handle(c)
	case "pick":
		var p selection.Picked
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			a.logger.Warn("Malformed pick", zap.Error(err))
			return
		}
		if _, err := a.selection.Pick(ctx, p); err != nil {
			a.logger.Debug("Pick ignored", zap.Error(err))
		}
	case "cancel":
		a.selection.Cancel(ctx)
	default:
		a.logger.Debug("Unknown page message", zap.String("kind", msg.Kind))
	}
}

func (a *Agent) actionRecorded(action models.Action) {
	if !a.closed.Load() {
		a.notifier.ActionRecorded(a.page, action)
	}
}

func (a *Agent) targetSelected(t models.Target) {
	if !a.closed.Load() {
		a.notifier.TargetSelected(a.page, t)
	}
}

func (a *Agent) selectionCancelled() {
	if !a.closed.Load() {
		a.notifier.SelectionCancelled(a.page)
	}
}

func (a *Agent) autoClickerState(running bool) {
	if !a.closed.Load() {
		a.notifier.AutoClickerStateChanged(a.page, running)
	}
}

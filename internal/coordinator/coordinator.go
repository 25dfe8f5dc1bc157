// Package coordinator owns the canonical automation state, routes requests to
// page agents and broadcasts every state change.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"echoclicker/internal/codec"
	"echoclicker/internal/models"
)

const teardownTimeout = 3 * time.Second

type Coordinator struct {
	injector    Injector
	broadcaster Broadcaster
	logger      *zap.Logger
	injects     singleflight.Group

	mu       sync.Mutex
	state    models.AutomationState
	recorded []models.Action
	agents   map[models.PageID]Agent
}

func New(injector Injector, broadcaster Broadcaster, logger *zap.Logger) *Coordinator {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		injector:    injector,
		broadcaster: broadcaster,
		logger:      logger.Named("coordinator"),
		agents:      make(map[models.PageID]Agent),
	}
}

func (c *Coordinator) GetState() models.AutomationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// HasAgent reports whether page is known to host an agent.
func (c *Coordinator) HasAgent(page models.PageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.agents[page]
	return ok
}

func (c *Coordinator) StartRecording(ctx context.Context, page models.PageID) error {
	if page == "" {
		return fmt.Errorf("%w: page id is required", models.ErrInvalidRequest)
	}

	c.mu.Lock()
	if c.state.Recording {
		other := c.state.RecordingPageID
		c.mu.Unlock()
		return fmt.Errorf("%w: recording is already in progress on page %s", models.ErrAlreadyActive, other)
	}
	c.state.Recording = true
	c.state.RecordingPageID = page
	c.recorded = nil
	c.broadcastStateLocked()
	c.mu.Unlock()

	err := c.withAgent(ctx, page, func(a Agent) error {
		return a.StartRecording(ctx)
	})
	if err != nil {
		c.mu.Lock()
		if c.state.Recording && c.state.RecordingPageID == page {
			c.resetRecordingLocked()
			c.broadcastStateLocked()
		}
		c.mu.Unlock()
		return err
	}

	c.logger.Info("Recording started", zap.String("page", string(page)))
	return nil
}

// StopRecording ends the recording and returns the captured actions in order.
func (c *Coordinator) StopRecording(ctx context.Context) ([]models.Action, error) {
	c.mu.Lock()
	if !c.state.Recording {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no recording in progress", models.ErrNotActive)
	}
	page := c.state.RecordingPageID
	actions := c.recorded
	c.resetRecordingLocked()
	c.recorded = nil
	c.broadcastStateLocked()
	a := c.agents[page]
	c.mu.Unlock()

	if a != nil {
		if err := a.StopRecording(ctx); err != nil {
			c.logger.Warn("Failed to detach recorder", zap.String("page", string(page)), zap.Error(err))
			c.evictUnreachable(ctx, page, a, err)
		}
	}

	c.logger.Info("Recording stopped", zap.String("page", string(page)), zap.Int("actions", len(actions)))
	if actions == nil {
		actions = []models.Action{}
	}
	return actions, nil
}

// ExecuteScript replays actions on page. The returned error is non-nil only
// when the run could not be attempted or the agent was lost.
func (c *Coordinator) ExecuteScript(ctx context.Context, page models.PageID, actions []models.Action) (models.Outcome, error) {
	if page == "" {
		err := fmt.Errorf("%w: page id is required", models.ErrInvalidRequest)
		return models.FailedOutcome(err), err
	}
	if err := models.ValidateActions(actions); err != nil {
		return models.FailedOutcome(err), err
	}

	var out models.Outcome
	err := c.withAgent(ctx, page, func(a Agent) error {
		var err error
		out, err = a.ExecuteScript(ctx, actions)
		return err
	})
	if err != nil {
		return models.FailedOutcome(err), err
	}

	fields := []zap.Field{
		zap.String("page", string(page)),
		zap.Int("actions", len(actions)),
		zap.Int64("duration_ms", out.Duration),
	}
	if out.OK() {
		c.logger.Info("Script finished", fields...)
	} else {
		c.logger.Warn("Script failed", append(fields,
			zap.String("kind", string(out.Kind)),
			zap.String("selector", out.Selector),
			zap.String("message", out.Message))...)
	}
	return out, nil
}

func (c *Coordinator) EnterSelectionMode(ctx context.Context, page models.PageID, variant models.SelectionVariant) error {
	if page == "" {
		return fmt.Errorf("%w: page id is required", models.ErrInvalidRequest)
	}
	if variant == "" {
		variant = models.VariantElement
	}
	if err := variant.Validate(); err != nil {
		return err
	}
	return c.withAgent(ctx, page, func(a Agent) error {
		return a.EnterSelectionMode(ctx, variant)
	})
}

// StartAutoClicker starts the auto-clicker on page. A nil options target
// falls back to the last selected target.
func (c *Coordinator) StartAutoClicker(ctx context.Context, page models.PageID, opts models.AutoClickOptions) error {
	if page == "" {
		return fmt.Errorf("%w: page id is required", models.ErrInvalidRequest)
	}

	c.mu.Lock()
	if c.state.AutoClicking {
		other := c.state.AutoClickingPageID
		c.mu.Unlock()
		return fmt.Errorf("%w: auto-clicker is already running on page %s", models.ErrAlreadyActive, other)
	}
	if opts.Target == nil && c.state.SelectedTarget != nil {
		t := *c.state.SelectedTarget
		opts.Target = &t
	}
	if err := opts.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.AutoClicking = true
	c.state.AutoClickingPageID = page
	c.broadcastStateLocked()
	c.mu.Unlock()

	err := c.withAgent(ctx, page, func(a Agent) error {
		return a.StartAutoClicker(ctx, opts)
	})
	if err != nil {
		c.mu.Lock()
		if c.state.AutoClicking && c.state.AutoClickingPageID == page {
			c.resetAutoClickLocked()
			c.broadcastStateLocked()
		}
		c.mu.Unlock()
		return err
	}

	c.logger.Info("Auto-clicker started", zap.String("page", string(page)))
	return nil
}

func (c *Coordinator) StopAutoClicker(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.AutoClicking {
		c.mu.Unlock()
		return fmt.Errorf("%w: no auto-clicker running", models.ErrNotActive)
	}
	page := c.state.AutoClickingPageID
	c.resetAutoClickLocked()
	c.broadcastStateLocked()
	a := c.agents[page]
	c.mu.Unlock()

	if a != nil {
		if err := a.StopAutoClicker(ctx); err != nil {
			c.logger.Warn("Failed to stop auto-clicker in page", zap.String("page", string(page)), zap.Error(err))
			c.evictUnreachable(ctx, page, a, err)
		}
	}
	c.logger.Info("Auto-clicker stopped", zap.String("page", string(page)))
	return nil
}

// ActionRecorded accepts actions only from the page being recorded.
func (c *Coordinator) ActionRecorded(page models.PageID, action models.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Recording || c.state.RecordingPageID != page {
		c.logger.Debug("Dropping action from non-recording page", zap.String("page", string(page)))
		return
	}
	c.recorded = append(c.recorded, action)
	c.broadcaster.Broadcast(models.Event{
		Name:   models.MsgActionRecorded,
		PageID: page,
		Step:   &action,
		Line:   codec.FormatAction(action),
	})
}

func (c *Coordinator) TargetSelected(page models.PageID, target models.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.SelectedTarget = &target
	c.broadcaster.Broadcast(models.Event{Name: models.MsgTargetSelected, PageID: page, Target: &target})
	c.broadcastStateLocked()
	c.logger.Info("Target selected", zap.String("page", string(page)), zap.Bool("point", target.IsPoint))
}

func (c *Coordinator) SelectionCancelled(page models.PageID) {
	c.broadcaster.Broadcast(models.Event{Name: models.MsgSelectionCancelled, PageID: page})
}

// AutoClickerStateChanged records a start or stop reported by a page's
// scheduler, including runs that ended because their duration elapsed.
func (c *Coordinator) AutoClickerStateChanged(page models.PageID, running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broadcaster.Broadcast(models.Event{Name: models.MsgAutoClickerStateChanged, PageID: page, Running: &running})

	switch {
	case running && !c.state.AutoClicking:
		c.state.AutoClicking = true
		c.state.AutoClickingPageID = page
	case !running && c.state.AutoClicking && c.state.AutoClickingPageID == page:
		c.resetAutoClickLocked()
	default:
		return
	}
	c.broadcastStateLocked()
}

// PageClosed resets every state field that references page and evicts its
// agent.
func (c *Coordinator) PageClosed(ctx context.Context, page models.PageID) {
	c.releasePage(ctx, page, "closed")
}

// PageNavigating treats a navigation away like a close: the page script is
// gone with the old document.
func (c *Coordinator) PageNavigating(ctx context.Context, page models.PageID) {
	c.releasePage(ctx, page, "navigating")
}

// Reconcile releases pages that are no longer open but were never reported
// closed.
func (c *Coordinator) Reconcile(ctx context.Context, live []models.PageID) int {
	alive := make(map[models.PageID]bool, len(live))
	for _, p := range live {
		alive[p] = true
	}

	c.mu.Lock()
	var stale []models.PageID
	seen := make(map[models.PageID]bool)
	consider := func(p models.PageID) {
		if p != "" && !alive[p] && !seen[p] {
			seen[p] = true
			stale = append(stale, p)
		}
	}
	consider(c.state.RecordingPageID)
	consider(c.state.AutoClickingPageID)
	for p := range c.agents {
		consider(p)
	}
	c.mu.Unlock()

	for _, p := range stale {
		c.releasePage(ctx, p, "missing")
	}
	return len(stale)
}

// Shutdown tears every agent down and clears the state.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	agents := c.agents
	c.agents = make(map[models.PageID]Agent)
	c.resetRecordingLocked()
	c.resetAutoClickLocked()
	c.recorded = nil
	c.mu.Unlock()

	for page, a := range agents {
		c.logger.Debug("Closing agent", zap.String("page", string(page)))
		c.closeAgent(ctx, a)
	}
}

func (c *Coordinator) releasePage(ctx context.Context, page models.PageID, reason string) {
	c.mu.Lock()
	changed := false
	if c.state.Recording && c.state.RecordingPageID == page {
		c.resetRecordingLocked()
		changed = true
	}
	if c.state.AutoClicking && c.state.AutoClickingPageID == page {
		c.resetAutoClickLocked()
		changed = true
	}
	if changed {
		c.broadcastStateLocked()
	}
	a := c.agents[page]
	delete(c.agents, page)
	c.mu.Unlock()

	if changed || a != nil {
		c.logger.Info("Page released",
			zap.String("page", string(page)),
			zap.String("reason", reason),
			zap.Bool("state_reset", changed))
	}
	if a != nil {
		c.closeAgent(ctx, a)
	}
}

// withAgent runs fn against page's agent, injecting it first when needed. A
// lost agent is evicted and the call retried once with a fresh injection.
func (c *Coordinator) withAgent(ctx context.Context, page models.PageID, fn func(Agent) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var a Agent
		a, err = c.ensureAgent(ctx, page)
		if err != nil {
			if errors.Is(err, models.ErrAgentUnreachable) && attempt == 0 {
				continue
			}
			return err
		}
		err = fn(a)
		if !errors.Is(err, models.ErrAgentUnreachable) {
			return err
		}
		c.logger.Warn("Agent unreachable, evicting",
			zap.String("page", string(page)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		c.evict(ctx, page, a)
	}
	return err
}

func (c *Coordinator) ensureAgent(ctx context.Context, page models.PageID) (Agent, error) {
	c.mu.Lock()
	a := c.agents[page]
	c.mu.Unlock()
	if a != nil {
		return a, nil
	}

	v, err, _ := c.injects.Do(string(page), func() (interface{}, error) {
		c.mu.Lock()
		if a := c.agents[page]; a != nil {
			c.mu.Unlock()
			return a, nil
		}
		c.mu.Unlock()

		a, err := c.injector.Inject(ctx, page, c)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.agents[page] = a
		c.mu.Unlock()
		c.logger.Debug("Agent injected", zap.String("page", string(page)))
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Agent), nil
}

// evict forgets a only if it is still the cached agent for page.
func (c *Coordinator) evict(ctx context.Context, page models.PageID, a Agent) {
	c.mu.Lock()
	cur, ok := c.agents[page]
	if ok && cur == a {
		delete(c.agents, page)
	}
	c.mu.Unlock()
	if ok && cur == a {
		c.closeAgent(ctx, a)
	}
}

// evictUnreachable drops a from the cache when err says its page script is gone.
func (c *Coordinator) evictUnreachable(ctx context.Context, page models.PageID, a Agent, err error) {
	if errors.Is(err, models.ErrAgentUnreachable) {
		c.evict(ctx, page, a)
	}
}

func (c *Coordinator) closeAgent(ctx context.Context, a Agent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	a.Close(ctx)
}

func (c *Coordinator) resetRecordingLocked() {
	c.state.Recording = false
	c.state.RecordingPageID = ""
}

func (c *Coordinator) resetAutoClickLocked() {
	c.state.AutoClicking = false
	c.state.AutoClickingPageID = ""
}

func (c *Coordinator) broadcastStateLocked() {
	if err := c.state.Validate(); err != nil {
		c.logger.Error("Inconsistent automation state", zap.Error(err))
	}
	st := c.state.Clone()
	c.broadcaster.Broadcast(models.Event{Name: models.MsgStateChanged, State: &st})
}

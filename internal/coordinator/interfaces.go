package coordinator

import (
	"context"

	"echoclicker/internal/models"
)

// Agent is the per-page half of the system. Any method may fail with an
// error wrapping models.ErrAgentUnreachable when the page no longer answers.
type Agent interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	// ExecuteScript returns the replay outcome; the error is reserved for
	// transport failures.
	ExecuteScript(ctx context.Context, actions []models.Action) (models.Outcome, error)
	EnterSelectionMode(ctx context.Context, variant models.SelectionVariant) error
	StartAutoClicker(ctx context.Context, opts models.AutoClickOptions) error
	StopAutoClicker(ctx context.Context) error
	// Close stops everything the agent runs in the page without reporting.
	Close(ctx context.Context)
}

// Notifier receives fire-and-forget notifications from agents.
type Notifier interface {
	ActionRecorded(page models.PageID, action models.Action)
	TargetSelected(page models.PageID, target models.Target)
	SelectionCancelled(page models.PageID)
	AutoClickerStateChanged(page models.PageID, running bool)
}

// Injector installs an agent into a page.
type Injector interface {
	Inject(ctx context.Context, page models.PageID, n Notifier) (Agent, error)
}

// Broadcaster fans events out to control surfaces. Broadcast must not block;
// delivery is best effort.
type Broadcaster interface {
	Broadcast(ev models.Event)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(models.Event) {}

// Package recorder turns user interactions captured on a page into actions.
package recorder

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"echoclicker/internal/models"
	"echoclicker/internal/selector"
)

// Hooks installs and removes the capturing-phase click and change listeners
// in the page.
type Hooks interface {
	AttachRecorder(ctx context.Context) error
	DetachRecorder(ctx context.Context) error
}

// Captured is one interaction reported by the page listeners.
type Captured struct {
	Event   string           `json:"event"` // click or change
	Lineage selector.Lineage `json:"lineage"`
	Value   string           `json:"value,omitempty"`
	// UI is set when the target belongs to the tool's own injected elements.
	UI bool `json:"ui,omitempty"`
}

type Recorder struct {
	hooks       Hooks
	emit        func(models.Action)
	suppressed  func() bool
	logger      *zap.Logger
	isRecording bool
	mutex       sync.RWMutex
}

// New builds a recorder that reports each action through emit. suppressed,
// when non-nil, is consulted per event; captures are dropped while it
// returns true.
func New(hooks Hooks, emit func(models.Action), suppressed func() bool, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		hooks:      hooks,
		emit:       emit,
		suppressed: suppressed,
		logger:     logger.Named("recorder"),
	}
}

// Start attaches the listeners. Starting twice is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.isRecording {
		return nil
	}
	if err := r.hooks.AttachRecorder(ctx); err != nil {
		return err
	}
	r.isRecording = true
	r.logger.Debug("Listeners attached")
	return nil
}

// Stop detaches the listeners. Stopping while stopped is a no-op.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isRecording {
		return nil
	}
	r.isRecording = false
	if err := r.hooks.DetachRecorder(ctx); err != nil {
		return err
	}
	r.logger.Debug("Listeners detached")
	return nil
}

func (r *Recorder) IsRecording() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.isRecording
}

// Handle converts a captured interaction and emits it. It reports whether an
// action was produced.
func (r *Recorder) Handle(c Captured) (models.Action, bool) {
	if !r.IsRecording() || c.UI {
		return models.Action{}, false
	}
	if r.suppressed != nil && r.suppressed() {
		return models.Action{}, false
	}
	a, ok := Convert(c)
	if !ok {
		return models.Action{}, false
	}
	r.emit(a)
	return a, true
}

// Convert maps a click to Click and a value commit on an input-like element
// to Type.
func Convert(c Captured) (models.Action, bool) {
	sel := c.Lineage.Selector()
	if sel == "" {
		return models.Action{}, false
	}
	switch c.Event {
	case "click":
		return models.Click(sel), true
	case "change":
		switch strings.ToLower(c.Lineage.Tag()) {
		case "input", "textarea", "select":
			return models.Type(sel, c.Value), true
		}
	}
	return models.Action{}, false
}

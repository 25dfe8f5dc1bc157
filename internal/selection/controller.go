// Package selection implements the interactive target picker.
package selection

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"echoclicker/internal/models"
	"echoclicker/internal/selector"
)

type State int

const (
	Inactive State = iota
	Active
	Resolved
	Cancelled
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Resolved:
		return "resolved"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Overlay renders and removes the picker UI in the page: banner, capture
// layer, hover highlight and, for the coordinate variant, the live readout.
// Hide must restore any highlighted element's previous outline.
type Overlay interface {
	ShowPicker(ctx context.Context, variant models.SelectionVariant) error
	HidePicker(ctx context.Context) error
	Toast(ctx context.Context, message string) error
}

type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Picked is what the page reports when the user clicks in picker mode.
type Picked struct {
	Lineage selector.Lineage `json:"lineage"`
	Rect    Rect             `json:"rect"`
	ClientX float64          `json:"clientX"`
	ClientY float64          `json:"clientY"`
	ScrollX float64          `json:"scrollX"`
	ScrollY float64          `json:"scrollY"`
}

type Controller struct {
	overlay     Overlay
	onTarget    func(models.Target)
	onCancelled func()
	logger      *zap.Logger

	mu      sync.Mutex
	state   State
	variant models.SelectionVariant
}

func NewController(overlay Overlay, onTarget func(models.Target), onCancelled func(), logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		overlay:     overlay,
		onTarget:    onTarget,
		onCancelled: onCancelled,
		logger:      logger.Named("selection"),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsActive reports whether a picker session is open.
func (c *Controller) IsActive() bool {
	return c.State() == Active
}

func (c *Controller) Variant() models.SelectionVariant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

// Enter opens a picker session. An open session is torn down first.
func (c *Controller) Enter(ctx context.Context, variant models.SelectionVariant) error {
	if err := variant.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Active {
		if err := c.overlay.HidePicker(ctx); err != nil {
			c.logger.Warn("Failed to tear down previous picker", zap.Error(err))
		}
		c.state = Inactive
	}
	if err := c.overlay.ShowPicker(ctx, variant); err != nil {
		// ShowPicker may have partially rendered
		if herr := c.overlay.HidePicker(ctx); herr != nil {
			c.logger.Debug("Failed to clear partial picker", zap.Error(herr))
		}
		return err
	}
	c.state = Active
	c.variant = variant
	c.logger.Debug("Picker entered", zap.String("variant", string(variant)))
	return nil
}

// Pick finishes the session with the picked element or point.
func (c *Controller) Pick(ctx context.Context, p Picked) (models.Target, error) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return models.Target{}, fmt.Errorf("%w: no selection in progress", models.ErrNotActive)
	}

	var (
		target models.Target
		toast  string
	)
	if c.variant == models.VariantCoordinate {
		target = models.PointTarget(p.ClientX+p.ScrollX, p.ClientY+p.ScrollY)
		toast = fmt.Sprintf("Coordinate selected: (%.0f, %.0f)", target.X, target.Y)
	} else {
		sel := p.Lineage.Selector()
		if sel == "" {
			c.mu.Unlock()
			return models.Target{}, fmt.Errorf("%w: picked element has no selector", models.ErrInvalidRequest)
		}
		target = models.ElementTarget(sel, p.Rect.Left+p.Rect.Width/2, p.Rect.Top+p.Rect.Height/2)
		toast = "Target selected: " + sel
	}

	c.state = Resolved
	c.teardown(ctx)
	if err := c.overlay.Toast(ctx, toast); err != nil {
		c.logger.Debug("Toast failed", zap.Error(err))
	}
	c.state = Inactive
	c.mu.Unlock()

	if c.onTarget != nil {
		c.onTarget(target)
	}
	return target, nil
}

// Cancel closes the session without a target. Cancelling an inactive
// controller is a no-op.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	c.state = Cancelled
	c.teardown(ctx)
	c.state = Inactive
	c.mu.Unlock()

	if c.onCancelled != nil {
		c.onCancelled()
	}
}

// Abort tears the session down without reporting anything.
func (c *Controller) Abort(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return
	}
	c.teardown(ctx)
	c.state = Inactive
}

func (c *Controller) teardown(ctx context.Context) {
	if err := c.overlay.HidePicker(ctx); err != nil {
		c.logger.Warn("Failed to remove picker overlay", zap.Error(err))
	}
}

package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"echoclicker/internal/models"
	"echoclicker/internal/selector"
)

type fakeOverlay struct {
	shown  int
	hidden int
	toasts []string
	// open counts rendered overlays; it must never exceed one.
	open    int
	maxOpen int
	showErr error
	hideErr error
}

func (o *fakeOverlay) ShowPicker(context.Context, models.SelectionVariant) error {
	o.shown++
	if o.showErr != nil {
		return o.showErr
	}
	o.open++
	if o.open > o.maxOpen {
		o.maxOpen = o.open
	}
	return nil
}

func (o *fakeOverlay) HidePicker(context.Context) error {
	o.hidden++
	if o.hideErr != nil {
		return o.hideErr
	}
	if o.open > 0 {
		o.open--
	}
	return nil
}

func (o *fakeOverlay) Toast(_ context.Context, msg string) error {
	o.toasts = append(o.toasts, msg)
	return nil
}

type reports struct {
	targets   []models.Target
	cancelled int
}

func newController(o *fakeOverlay, r *reports) *Controller {
	return NewController(o,
		func(t models.Target) { r.targets = append(r.targets, t) },
		func() { r.cancelled++ },
		nil)
}

func TestPickElement(t *testing.T) {
	o, r := &fakeOverlay{}, &reports{}
	c := newController(o, r)
	ctx := context.Background()

	require.NoError(t, c.Enter(ctx, models.VariantElement))
	assert.True(t, c.IsActive())

	got, err := c.Pick(ctx, Picked{
		Lineage: selector.Lineage{{Tag: "button", ID: "buy", Index: 1}},
		Rect:    Rect{Left: 10, Top: 20, Width: 100, Height: 40},
		ScrollY: 500,
	})
	require.NoError(t, err)

	want := models.ElementTarget("button#buy", 60, 40)
	assert.Equal(t, want, got)
	assert.Equal(t, []models.Target{want}, r.targets)
	assert.Equal(t, Inactive, c.State())
	assert.Equal(t, 0, o.open)
	assert.Len(t, o.toasts, 1)
}

func TestPickCoordinateUsesPageCoordinates(t *testing.T) {
	o, r := &fakeOverlay{}, &reports{}
	c := newController(o, r)
	ctx := context.Background()

	require.NoError(t, c.Enter(ctx, models.VariantCoordinate))
	got, err := c.Pick(ctx, Picked{ClientX: 100, ClientY: 50, ScrollX: 5, ScrollY: 300})
	require.NoError(t, err)
	assert.Equal(t, models.PointTarget(105, 350), got)
}

func TestPickWhenInactive(t *testing.T) {
	c := newController(&fakeOverlay{}, &reports{})
	_, err := c.Pick(context.Background(), Picked{})
	assert.ErrorIs(t, err, models.ErrNotActive)
}

func TestCancel(t *testing.T) {
	o, r := &fakeOverlay{}, &reports{}
	c := newController(o, r)
	ctx := context.Background()

	c.Cancel(ctx)
	assert.Equal(t, 0, r.cancelled, "cancel while inactive is a no-op")

	require.NoError(t, c.Enter(ctx, models.VariantElement))
	c.Cancel(ctx)
	c.Cancel(ctx)
	assert.Equal(t, 1, r.cancelled)
	assert.Empty(t, r.targets)
	assert.Equal(t, 0, o.open)
	assert.Equal(t, Inactive, c.State())
}

func TestReenterTearsDownPreviousSession(t *testing.T) {
	o, r := &fakeOverlay{}, &reports{}
	c := newController(o, r)
	ctx := context.Background()

	require.NoError(t, c.Enter(ctx, models.VariantElement))
	require.NoError(t, c.Enter(ctx, models.VariantCoordinate))

	assert.Equal(t, 1, o.maxOpen)
	assert.Equal(t, models.VariantCoordinate, c.Variant())
	assert.Equal(t, 0, r.cancelled)
}

func TestAbortReportsNothing(t *testing.T) {
	o, r := &fakeOverlay{}, &reports{}
	c := newController(o, r)
	ctx := context.Background()

	require.NoError(t, c.Enter(ctx, models.VariantElement))
	c.Abort(ctx)
	c.Abort(ctx)
	assert.Equal(t, 0, r.cancelled)
	assert.Equal(t, 1, o.hidden)
	assert.False(t, c.IsActive())
}

func TestEnterRejectsUnknownVariant(t *testing.T) {
	c := newController(&fakeOverlay{}, &reports{})
	err := c.Enter(context.Background(), "lasso")
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestEnterFailureClearsPartialPicker(t *testing.T) {
	showErr := errors.New("render failed")
	o := &fakeOverlay{showErr: showErr, hideErr: errors.New("overlay gone")}
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewController(o, func(models.Target) {}, func() {}, zap.New(core))

	err := c.Enter(context.Background(), models.VariantElement)
	require.ErrorIs(t, err, showErr)
	assert.False(t, c.IsActive())
	assert.Equal(t, 1, o.hidden)

	entries := logs.FilterMessage("Failed to clear partial picker").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}

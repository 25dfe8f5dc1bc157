// Package autoclick runs the randomized auto-clicker loop.
package autoclick

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"echoclicker/internal/models"
)

// Clicker dispatches a synthetic click on whatever element occupies (x, y).
// pageCoords marks document coordinates, which must be converted to the
// viewport before hit-testing. It reports whether an element was hit.
type Clicker interface {
	ClickAt(ctx context.Context, x, y float64, pageCoords bool) (bool, error)
}

type Option func(*Scheduler)

// WithRand replaces the uniform [0,1) source used for jitter.
func WithRand(f func() float64) Option {
	return func(s *Scheduler) { s.rand = f }
}

// WithClock replaces the clock used for the end-of-run check.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs at most one auto-click loop at a time and reports every
// start and stop through onState.
type Scheduler struct {
	clicker Clicker
	onState func(running bool)
	logger  *zap.Logger
	rand    func() float64
	now     func() time.Time
	clicks  atomic.Int64

	// reportMu orders onState calls so a finished run never reports after
	// its successor started.
	reportMu sync.Mutex
	mu       sync.Mutex
	current  *run
}

func NewScheduler(clicker Clicker, onState func(running bool), logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onState == nil {
		onState = func(bool) {}
	}
	s := &Scheduler{
		clicker: clicker,
		onState: onState,
		logger:  logger.Named("autoclick"),
		rand:    rand.Float64,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Clicks returns the number of clicks dispatched since the scheduler was built.
func (s *Scheduler) Clicks() int64 {
	return s.clicks.Load()
}

// Start replaces any running loop with a new one. The first click fires
// immediately; the loop ends once the duration has elapsed.
func (s *Scheduler) Start(opts models.AutoClickOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	target := *opts.Target

	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	if s.stopLocked() {
		s.onState(false)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.current = r
	s.mu.Unlock()

	s.logger.Info("Auto-clicker started",
		zap.Float64("x", target.X),
		zap.Float64("y", target.Y),
		zap.Bool("point", target.IsPoint),
		zap.Float64("radius", opts.Radius),
		zap.Int64("min_ms", opts.MinInterval),
		zap.Int64("max_ms", opts.MaxInterval),
		zap.Int64("duration_ms", opts.Duration))
	s.onState(true)

	go s.loop(ctx, r, target, opts)
	return nil
}

// Stop cancels the running loop, waits for it to exit and reports. It is a
// no-op when nothing runs.
func (s *Scheduler) Stop() {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	if s.stopLocked() {
		s.logger.Info("Auto-clicker stopped")
		s.onState(false)
	}
}

// stopLocked must be called with reportMu held.
func (s *Scheduler) stopLocked() bool {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()
	if r == nil {
		return false
	}
	r.cancel()
	<-r.done
	return true
}

func (s *Scheduler) loop(ctx context.Context, r *run, target models.Target, opts models.AutoClickOptions) {
	end := s.now().Add(time.Duration(opts.Duration) * time.Millisecond)

	s.click(ctx, target, opts.Radius)
	for s.now().Before(end) {
		if !sleep(ctx, s.delay(opts.MinInterval, opts.MaxInterval)) {
			break
		}
		if !s.now().Before(end) {
			break
		}
		s.click(ctx, target, opts.Radius)
	}
	r.cancel()
	close(r.done)

	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.mu.Lock()
	mine := s.current == r
	if mine {
		s.current = nil
	}
	s.mu.Unlock()
	if mine {
		s.logger.Info("Auto-clicker finished", zap.Int64("clicks", s.clicks.Load()))
		s.onState(false)
	}
}

func (s *Scheduler) click(ctx context.Context, target models.Target, radius float64) {
	if ctx.Err() != nil {
		return
	}
	x, y := Jitter(target.X, target.Y, radius, s.rand)
	hit, err := s.clicker.ClickAt(ctx, x, y, target.IsPoint)
	s.clicks.Add(1)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		s.logger.Warn("Click failed", zap.Float64("x", x), zap.Float64("y", y), zap.Error(err))
	case !hit:
		s.logger.Debug("Nothing under point", zap.Float64("x", x), zap.Float64("y", y))
	}
}

func (s *Scheduler) delay(minMs, maxMs int64) time.Duration {
	ms := float64(minMs) + s.rand()*float64(maxMs-minMs)
	return time.Duration(ms * float64(time.Millisecond))
}

// Jitter picks a point in the disk of the given radius around (cx, cy) using
// a uniform angle and a uniform distance, so points cluster toward the centre.
func Jitter(cx, cy, radius float64, rnd func() float64) (float64, float64) {
	angle := rnd() * 2 * math.Pi
	r := rnd() * radius
	return cx + r*math.Cos(angle), cy + r*math.Sin(angle)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package chrome

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Session is a long-lived attachment to one tab. Binding calls and
// navigation events are delivered in order on a single goroutine.
type Session struct {
	ID string

	ctx      context.Context
	cancel   context.CancelFunc
	queue    chan func()
	stopOnce sync.Once
	stopped  chan struct{}
	logger   *zap.Logger

	mu       sync.Mutex
	bindings map[string]func(payload string)
}

func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.stopped:
			return
		case fn := <-s.queue:
			fn()
		}
	}
}

func (s *Session) stopLoop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Session) enqueue(fn func()) {
	select {
	case s.queue <- fn:
	default:
		s.logger.Warn("Page event queue full, dropping event")
	}
}

func (s *Session) binding(name string) func(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings[name]
}

// Bind exposes window[name] to the page; every call is handed to fn. Binding
// the same name again replaces the handler.
func (s *Session) Bind(ctx context.Context, name string, fn func(payload string)) error {
	s.mu.Lock()
	_, exists := s.bindings[name]
	s.bindings[name] = fn
	s.mu.Unlock()
	if exists {
		return nil
	}
	if err := s.Do(ctx, runtime.AddBinding(name)); err != nil {
		s.mu.Lock()
		delete(s.bindings, name)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Unbind drops the handler for name. The page-side function stays defined;
// calls to it are ignored.
func (s *Session) Unbind(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, name)
}

// Do runs actions against the tab, bounded by ctx rather than the session.
func (s *Session) Do(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return ErrSessionClosed
	}
	ectx := cdp.WithExecutor(ctx, c.Target)
	for _, a := range actions {
		if err := a.Do(ectx); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs expression in the page's main world and decodes the result
// into res. Promises are awaited when await is set.
func (s *Session) Evaluate(ctx context.Context, expression string, res interface{}, await bool) error {
	return s.Do(ctx, chromedp.Evaluate(expression, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(await)
	}))
}

// URL returns the document's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.Evaluate(ctx, `location.href`, &u, false)
	return u, err
}

// Closed reports whether the tab is gone.
func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// IsContextLost reports errors raised when the document an evaluation ran
// against was replaced or the tab went away.
func IsContextLost(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range []string{
		"Execution context was destroyed",
		"Cannot find context with specified id",
		"Inspected target navigated or closed",
		"No target with given id",
		"target closed",
		"Target closed",
	} {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return errors.Is(err, ErrSessionClosed)
}

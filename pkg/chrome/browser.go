package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

var (
	ErrPageNotFound  = errors.New("page not found")
	ErrSessionClosed = errors.New("page session closed")
)

type Options struct {
	ExecPath     string
	Headless     bool
	RemoteURL    string
	UserDataDir  string
	WindowWidth  int
	WindowHeight int
	StartupWait  time.Duration
}

// Events receives tab lifecycle notifications. Handlers run on a session's
// event goroutine and may block.
type Events struct {
	Closed    func(id string)
	Navigated func(id string)
}

type PageInfo struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Browser owns one Chrome instance, launched or attached remotely, and one
// long-lived session per tab that has been used.
type Browser struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	attachMu sync.Mutex
	mu       sync.Mutex
	events   Events
	sessions map[string]*Session
}

// Launch starts Chrome (or attaches to opts.RemoteURL) and enables target
// discovery so closed tabs are reported.
func Launch(ctx context.Context, opts Options, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chrome")

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		wait := opts.StartupWait
		if wait <= 0 {
			wait = 10 * time.Second
		}
		if err := waitForDebugger(ctx, opts.RemoteURL, wait); err != nil {
			return nil, err
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
		logger.Info("Attaching to remote Chrome", zap.String("url", opts.RemoteURL))
	} else {
		path := opts.ExecPath
		if path == "" {
			path = GetChromePath()
		}
		if path == "" {
			path = GetFlatpakChromePath()
		}
		if path == "" {
			return nil, fmt.Errorf("Chrome browser not found. Please install Google Chrome or Chromium")
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOptions(path, opts)...)
		logger.Info("Launching Chrome", zap.String("path", path), zap.Bool("headless", opts.Headless))
	}

	sugar := logger.Sugar()
	bctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	b := &Browser{
		allocCancel: allocCancel,
		ctx:         bctx,
		cancel:      cancel,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}

	if err := chromedp.Run(bctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	})); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	chromedp.ListenBrowser(bctx, b.onBrowserEvent)
	return b, nil
}

func execOptions(path string, opts Options) []chromedp.ExecAllocatorOption {
	w, h := opts.WindowWidth, opts.WindowHeight
	if w <= 0 || h <= 0 {
		w, h = 1366, 900
	}
	o := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("no-first-run", true),
		chromedp.WindowSize(w, h),
	)
	if opts.UserDataDir != "" {
		o = append(o, chromedp.UserDataDir(opts.UserDataDir))
	}
	return o
}

// SetEvents installs lifecycle handlers.
func (b *Browser) SetEvents(ev Events) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = ev
}

func (b *Browser) handlers() Events {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events
}

func (b *Browser) browserExec(ctx context.Context) (context.Context, error) {
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return nil, ErrSessionClosed
	}
	return cdp.WithExecutor(ctx, c.Browser), nil
}

// Pages lists open tabs.
func (b *Browser) Pages(ctx context.Context) ([]PageInfo, error) {
	ectx, err := b.browserExec(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := target.GetTargets().Do(ectx)
	if err != nil {
		return nil, err
	}
	pages := make([]PageInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		pages = append(pages, PageInfo{ID: string(info.TargetID), URL: info.URL, Title: info.Title})
	}
	return pages, nil
}

// NewPage opens a tab at url and returns its id.
func (b *Browser) NewPage(ctx context.Context, url string) (string, error) {
	ectx, err := b.browserExec(ctx)
	if err != nil {
		return "", err
	}
	id, err := target.CreateTarget(url).Do(ectx)
	if err != nil {
		return "", err
	}
	b.logger.Info("Opened page", zap.String("page", string(id)), zap.String("url", url))
	return string(id), nil
}

// Session returns the session attached to tab id, attaching on first use.
func (b *Browser) Session(ctx context.Context, id string) (*Session, error) {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()

	b.mu.Lock()
	if s, ok := b.sessions[id]; ok && s.ctx.Err() == nil {
		b.mu.Unlock()
		return s, nil
	}
	b.mu.Unlock()

	pages, err := b.Pages(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range pages {
		if p.ID == id {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}

	// Tab contexts are cancelled only when the tab is gone or the browser
	// shuts down, since chromedp closes the target on cancel.
	sctx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(target.ID(id)))
	if err := chromedp.Run(sctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to page %s: %w", id, err)
	}

	s := &Session{
		ID:       id,
		ctx:      sctx,
		cancel:   cancel,
		queue:    make(chan func(), 256),
		stopped:  make(chan struct{}),
		bindings: make(map[string]func(string)),
		logger:   b.logger.With(zap.String("page", id)),
	}
	chromedp.ListenTarget(sctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *runtime.EventBindingCalled:
			if h := s.binding(ev.Name); h != nil {
				payload := ev.Payload
				s.enqueue(func() { h(payload) })
			}
		case *page.EventFrameNavigated:
			if ev.Frame != nil && ev.Frame.ParentID == "" {
				s.enqueue(func() {
					if h := b.handlers().Navigated; h != nil {
						h(id)
					}
				})
			}
		}
	})
	go s.run()

	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()

	b.logger.Debug("Attached to page", zap.String("page", id))
	return s, nil
}

func (b *Browser) onBrowserEvent(ev interface{}) {
	destroyed, ok := ev.(*target.EventTargetDestroyed)
	if !ok {
		return
	}
	id := string(destroyed.TargetID)
	// listener callbacks must not block
	go func() {
		b.mu.Lock()
		s := b.sessions[id]
		delete(b.sessions, id)
		b.mu.Unlock()
		if s != nil {
			s.cancel()
		}
		if h := b.handlers().Closed; h != nil {
			h(id)
		}
	}()
}

// Close detaches every session and shuts the browser down (or disconnects
// from a remote one).
func (b *Browser) Close() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*Session)
	b.mu.Unlock()
	for _, s := range sessions {
		s.stopLoop()
	}
	b.cancel()
	b.allocCancel()
}

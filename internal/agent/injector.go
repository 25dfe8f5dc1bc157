package agent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"echoclicker/internal/coordinator"
	"echoclicker/internal/models"
	"echoclicker/pkg/chrome"
)

//go:embed scripts/agent.js
var pageScript string

// Tabs hands out tab sessions by page id.
type Tabs interface {
	Tab(ctx context.Context, id string) (Tab, error)
}

// BrowserTabs adapts a chrome.Browser to Tabs.
type BrowserTabs struct {
	Browser *chrome.Browser
}

func (b BrowserTabs) Tab(ctx context.Context, id string) (Tab, error) {
	s, err := b.Browser.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type Injector struct {
	tabs   Tabs
	cfg    Config
	logger *zap.Logger
}

func NewInjector(tabs Tabs, cfg Config, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{tabs: tabs, cfg: cfg, logger: logger}
}

// Inject loads the page script into page and returns an agent bound to it.
// Only http and https documents can host the script.
func (i *Injector) Inject(ctx context.Context, page models.PageID, n coordinator.Notifier) (coordinator.Agent, error) {
	tab, err := i.tabs.Tab(ctx, string(page))
	if err != nil {
		if errors.Is(err, chrome.ErrPageNotFound) {
			return nil, fmt.Errorf("%w: page %s", models.ErrNotFound, page)
		}
		return nil, unreachable(err)
	}

	location, err := tab.URL(ctx)
	if err != nil {
		return nil, unreachable(err)
	}
	if !scriptable(location) {
		return nil, fmt.Errorf("%w: cannot automate %q, only http and https pages are supported", models.ErrInvalidRequest, location)
	}

	driver := newCDPPage(tab)
	a := New(page, driver, n, i.cfg, i.logger)
	if err := tab.Bind(ctx, BindingName, a.HandleMessage); err != nil {
		return nil, unreachable(err)
	}

	var ok bool
	if err := tab.Evaluate(ctx, pageScript, &ok, false); err != nil {
		if chrome.IsContextLost(err) {
			return nil, unreachable(err)
		}
		return nil, fmt.Errorf("failed to load page script: %w", err)
	}
	if err := driver.Ping(ctx); err != nil {
		return nil, err
	}

	i.logger.Info("Agent injected", zap.String("page", string(page)), zap.String("url", location))
	return a, nil
}

func scriptable(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

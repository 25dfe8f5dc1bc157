package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"echoclicker/internal/models"
	"echoclicker/pkg/chrome"
)

// PageLister reports the tabs that are currently open.
type PageLister interface {
	LivePages(ctx context.Context) ([]models.PageID, error)
}

// Reconciler releases state held for pages that are gone.
type Reconciler interface {
	Reconcile(ctx context.Context, live []models.PageID) int
}

// BrowserPages lists the tabs of a chrome.Browser.
type BrowserPages struct {
	Browser *chrome.Browser
}

func (b BrowserPages) LivePages(ctx context.Context) ([]models.PageID, error) {
	pages, err := b.Browser.Pages(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]models.PageID, len(pages))
	for i, p := range pages {
		ids[i] = models.PageID(p.ID)
	}
	return ids, nil
}

// StatusSyncService periodically compares open tabs against the pages the
// coordinator holds state for, catching closes whose event was missed.
type StatusSyncService struct {
	lister     PageLister
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStatusSyncService(lister PageLister, reconciler Reconciler, interval time.Duration, logger *zap.Logger) *StatusSyncService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusSyncService{
		lister:     lister,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.Named("status-sync"),
	}
}

// Start runs the sync loop until Stop or until ctx is done. Starting twice
// is a no-op.
func (s *StatusSyncService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.syncLoop(ctx, s.done)
	s.logger.Info("Status sync service started", zap.Duration("interval", s.interval))
}

func (s *StatusSyncService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Status sync service stopped")
}

func (s *StatusSyncService) syncLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Failed to list pages", zap.Error(err))
			}
		}
	}
}

// SyncOnce runs one comparison and returns how many pages were released.
func (s *StatusSyncService) SyncOnce(ctx context.Context) (int, error) {
	live, err := s.lister.LivePages(ctx)
	if err != nil {
		return 0, err
	}
	fixed := s.reconciler.Reconcile(ctx, live)
	if fixed > 0 {
		s.logger.Info("Released stale pages", zap.Int("count", fixed))
	}
	return fixed, nil
}

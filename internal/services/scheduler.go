package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"echoclicker/internal/codec"
	"echoclicker/internal/models"
)

// ScriptRunner replays actions on a page.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, page models.PageID, actions []models.Action) (models.Outcome, error)
}

// ScriptLoader looks scripts up by name.
type ScriptLoader interface {
	Load(ctx context.Context, name string) (models.Script, error)
}

// cronParser accepts an optional leading seconds field and descriptors such
// as @every 1m.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const defaultRunTimeout = 10 * time.Minute

type scheduledEntry struct {
	schedule models.Schedule
	entryID  cron.EntryID
}

// SchedulerService replays named scripts on cron schedules. A run still in
// progress when its next tick fires makes that tick a no-op.
type SchedulerService struct {
	cron       *cron.Cron
	runner     ScriptRunner
	loader     ScriptLoader
	logger     *zap.Logger
	runTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

func NewSchedulerService(runner ScriptRunner, loader ScriptLoader, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	return &SchedulerService{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:     runner,
		loader:     loader,
		logger:     logger,
		runTimeout: defaultRunTimeout,
		now:        time.Now,
		entries:    make(map[string]scheduledEntry),
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler service started")
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *SchedulerService) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduled runs still in progress at shutdown")
	}
	s.logger.Info("Scheduler service stopped")
}

// Add validates sch, checks its script exists and schedules it.
func (s *SchedulerService) Add(ctx context.Context, sch models.Schedule) (models.Schedule, error) {
	sch.ScriptName = strings.TrimSpace(sch.ScriptName)
	sch.CronExpression = strings.TrimSpace(sch.CronExpression)
	switch {
	case sch.ScriptName == "":
		return models.Schedule{}, fmt.Errorf("%w: script_name is required", models.ErrInvalidRequest)
	case sch.PageID == "":
		return models.Schedule{}, fmt.Errorf("%w: page_id is required", models.ErrInvalidRequest)
	}

	spec, err := cronParser.Parse(sch.CronExpression)
	if err != nil {
		return models.Schedule{}, fmt.Errorf("%w: cron expression %q: %v", models.ErrInvalidRequest, sch.CronExpression, err)
	}
	if _, err := s.loader.Load(ctx, sch.ScriptName); err != nil {
		return models.Schedule{}, err
	}

	sch.ID = uuid.New().String()
	sch.CreatedAt = s.now()
	sch.NextRun = spec.Next(sch.CreatedAt)

	id := sch.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID := s.cron.Schedule(spec, cron.FuncJob(func() { s.run(id) }))
	s.entries[id] = scheduledEntry{schedule: sch, entryID: entryID}

	s.logger.Info("Added schedule",
		zap.String("schedule", id),
		zap.String("script", sch.ScriptName),
		zap.String("page", string(sch.PageID)),
		zap.String("cron", sch.CronExpression))
	return sch, nil
}

func (s *SchedulerService) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: schedule %s", models.ErrNotFound, id)
	}
	s.cron.Remove(e.entryID)
	delete(s.entries, id)
	s.logger.Info("Removed schedule", zap.String("schedule", id))
	return nil
}

// List returns the schedules oldest first, with next run times from the
// running cron.
func (s *SchedulerService) List() []models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		sch := e.schedule
		if next := s.cron.Entry(e.entryID).Next; !next.IsZero() {
			sch.NextRun = next
		}
		list = append(list, sch)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// RemovePage drops every schedule targeting page.
func (s *SchedulerService) RemovePage(page models.PageID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if e.schedule.PageID == page {
			s.cron.Remove(e.entryID)
			delete(s.entries, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("Removed schedules of closed page", zap.String("page", string(page)), zap.Int("count", n))
	}
	return n
}

func (s *SchedulerService) run(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.Run(e.schedule)
}

// Run replays sch's script once and returns the outcome.
func (s *SchedulerService) Run(sch models.Schedule) models.Outcome {
	logger := s.logger.With(zap.String("schedule", sch.ID), zap.String("script", sch.ScriptName))
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	script, err := s.loader.Load(ctx, sch.ScriptName)
	if err != nil {
		logger.Error("Failed to load scheduled script", zap.Error(err))
		return models.FailedOutcome(err)
	}

	actions, diags := codec.Parse(script.Text)
	for _, d := range diags {
		logger.Warn("Skipping script line", zap.Int("line", d.Line), zap.String("reason", d.Reason))
	}
	if len(actions) == 0 {
		err := fmt.Errorf("%w: script %q has no actions", models.ErrMalformedScript, sch.ScriptName)
		logger.Error("Nothing to replay", zap.Error(err))
		return models.FailedOutcome(err)
	}

	logger.Info("Executing scheduled script", zap.Int("actions", len(actions)))
	out, err := s.runner.ExecuteScript(ctx, sch.PageID, actions)
	if err != nil {
		logger.Error("Scheduled replay failed", zap.Error(err))
		return models.FailedOutcome(err)
	}
	if out.OK() {
		logger.Info("Scheduled replay finished", zap.Int64("duration_ms", out.Duration))
	} else {
		logger.Warn("Scheduled replay failed",
			zap.String("kind", string(out.Kind)),
			zap.String("message", out.Message),
			zap.Int("step", out.StepIndex))
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

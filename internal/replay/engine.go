// Package replay executes recorded action sequences against a live page.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"echoclicker/internal/models"
)

const DefaultElementTimeout = 5 * time.Second

// Page is the page surface replay needs. WaitFor blocks until an element
// matching selector exists or ctx is done.
type Page interface {
	WaitFor(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
}

type Engine struct {
	page    Page
	timeout time.Duration
	logger  *zap.Logger
}

func NewEngine(page Page, timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultElementTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{page: page, timeout: timeout, logger: logger.Named("replay")}
}

// Execute runs actions strictly in order and stops at the first failure.
// Only element resolution is time-bounded; the run as a whole is not.
func (e *Engine) Execute(ctx context.Context, actions []models.Action) models.Outcome {
	start := time.Now()
	out := models.Outcome{Status: models.OutcomeSuccess, StepIndex: -1}
	total := len(actions)

	for i, a := range actions {
		stepStart := time.Now()
		desc := describe(a, i, total)
		addStepLog(&out, "info", "running "+desc, i, a, "running", 0, "")

		err := e.executeStep(ctx, a)
		d := time.Since(stepStart).Milliseconds()
		if err != nil {
			e.logger.Warn("Step failed",
				zap.Int("step", i+1),
				zap.String("type", string(a.Type)),
				zap.String("selector", a.Selector),
				zap.Error(err))
			addStepLog(&out, "error", fmt.Sprintf("failed %s: %v (%dms)", desc, err, d), i, a, "failed", d, err.Error())
			out.Status = models.OutcomeError
			out.Kind = models.KindOf(err)
			out.Message = err.Error()
			out.Selector = a.Selector
			out.StepIndex = i
			out.Duration = time.Since(start).Milliseconds()
			return out
		}
		e.logger.Debug("Step done", zap.Int("step", i+1), zap.String("type", string(a.Type)), zap.Int64("ms", d))
		addStepLog(&out, "info", fmt.Sprintf("done %s (%dms)", desc, d), i, a, "success", d, "")
	}

	out.Duration = time.Since(start).Milliseconds()
	return out
}

func (e *Engine) executeStep(ctx context.Context, a models.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	switch a.Type {
	case models.ActionClick:
		if err := e.resolve(ctx, a.Selector); err != nil {
			return err
		}
		return e.page.Click(ctx, a.Selector)
	case models.ActionInput:
		if err := e.resolve(ctx, a.Selector); err != nil {
			return err
		}
		return e.page.SetValue(ctx, a.Selector, a.Value)
	case models.ActionWait:
		return sleep(ctx, time.Duration(a.Ms)*time.Millisecond)
	default:
		return fmt.Errorf("%w: unsupported action type %q", models.ErrInvalidRequest, a.Type)
	}
}

// resolve waits up to the element timeout for selector to match.
func (e *Engine) resolve(ctx context.Context, selector string) error {
	wctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.page.WaitFor(wctx, selector)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("replay cancelled: %w", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(wctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s (waited %s)", models.ErrElementNotFound, selector, e.timeout)
	default:
		return err
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("replay cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

func addStepLog(out *models.Outcome, level, message string, i int, a models.Action, status string, d int64, detail string) {
	out.Logs = append(out.Logs, models.StepLog{
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		StepIndex:   i,
		StepType:    a.Type,
		StepStatus:  status,
		Selector:    a.Selector,
		Value:       a.Value,
		Duration:    d,
		ErrorDetail: detail,
	})
}

func describe(a models.Action, i, total int) string {
	progress := fmt.Sprintf("[%d/%d]", i+1, total)
	switch a.Type {
	case models.ActionClick:
		return fmt.Sprintf("%s click %s", progress, a.Selector)
	case models.ActionInput:
		if len(a.Value) > 50 {
			return fmt.Sprintf("%s type into %s (%d chars)", progress, a.Selector, len(a.Value))
		}
		return fmt.Sprintf("%s type into %s: %q", progress, a.Selector, a.Value)
	case models.ActionWait:
		return fmt.Sprintf("%s wait %dms", progress, a.Ms)
	default:
		return fmt.Sprintf("%s %s", progress, a.Type)
	}
}

package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoclicker/internal/models"
)

// fakePage knows a fixed set of selectors; WaitFor on anything else blocks
// until the context ends, like a DOM that never grows the element.
type fakePage struct {
	mu      sync.Mutex
	present map[string]bool
	calls   []string
}

func newFakePage(selectors ...string) *fakePage {
	p := &fakePage{present: make(map[string]bool)}
	for _, s := range selectors {
		p.present[s] = true
	}
	return p
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) WaitFor(ctx context.Context, selector string) error {
	p.mu.Lock()
	ok := p.present[selector]
	p.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.record("click " + selector)
	return nil
}

func (p *fakePage) SetValue(_ context.Context, selector, value string) error {
	p.record("type " + selector + "=" + value)
	return nil
}

func TestExecuteInOrder(t *testing.T) {
	page := newFakePage("#a", "#b")
	e := NewEngine(page, time.Second, nil)

	out := e.Execute(context.Background(), []models.Action{
		models.Click("#a"),
		models.Wait(10),
		models.Type("#b", "hi"),
	})

	require.True(t, out.OK(), out.Message)
	assert.Equal(t, -1, out.StepIndex)
	assert.Equal(t, []string{"click #a", "type #b=hi"}, page.Calls())
	assert.GreaterOrEqual(t, out.Duration, int64(10))
	// one running and one done entry per step
	assert.Len(t, out.Logs, 6)
}

func TestExecuteElementNotFoundAfterTimeout(t *testing.T) {
	const timeout = 80 * time.Millisecond
	page := newFakePage()
	e := NewEngine(page, timeout, nil)

	start := time.Now()
	out := e.Execute(context.Background(), []models.Action{models.Click("#missing")})
	elapsed := time.Since(start)

	assert.False(t, out.OK())
	assert.Equal(t, models.KindElementNotFound, out.Kind)
	assert.Equal(t, "#missing", out.Selector)
	assert.Equal(t, 0, out.StepIndex)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Empty(t, page.Calls())
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	page := newFakePage("#a", "#c")
	e := NewEngine(page, 20*time.Millisecond, nil)

	out := e.Execute(context.Background(), []models.Action{
		models.Click("#a"),
		models.Type("#b", "x"),
		models.Click("#c"),
	})

	assert.Equal(t, models.OutcomeError, out.Status)
	assert.Equal(t, 1, out.StepIndex)
	assert.Equal(t, "#b", out.Selector)
	assert.Equal(t, []string{"click #a"}, page.Calls())

	last := out.Logs[len(out.Logs)-1]
	assert.Equal(t, "failed", last.StepStatus)
	assert.Equal(t, models.ActionInput, last.StepType)
}

func TestExecuteCancelledDuringWait(t *testing.T) {
	e := NewEngine(newFakePage(), time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	out := e.Execute(ctx, []models.Action{models.Wait(5000)})

	assert.Equal(t, models.OutcomeError, out.Status)
	assert.Equal(t, models.KindInternal, out.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteRejectsInvalidAction(t *testing.T) {
	e := NewEngine(newFakePage(), time.Second, nil)
	out := e.Execute(context.Background(), []models.Action{{Type: "hover", Selector: "#a"}})
	assert.Equal(t, models.KindInvalidRequest, out.Kind)
}

func TestDefaultTimeout(t *testing.T) {
	e := NewEngine(newFakePage(), 0, nil)
	assert.Equal(t, DefaultElementTimeout, e.timeout)
}

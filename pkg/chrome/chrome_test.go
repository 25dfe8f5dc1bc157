package chrome

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForDebugger(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome"}`))
	}))
	defer srv.Close()

	err := waitForDebugger(context.Background(), srv.URL+"/", 5*time.Second)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitForDebuggerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := waitForDebugger(context.Background(), srv.URL, 300*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForDebuggerSkipsWebsocketURLs(t *testing.T) {
	err := waitForDebugger(context.Background(), "ws://127.0.0.1:1/devtools/browser/x", time.Millisecond)
	assert.NoError(t, err)
}

func TestIsContextLost(t *testing.T) {
	assert.True(t, IsContextLost(errors.New("Execution context was destroyed. (-32000)")))
	assert.True(t, IsContextLost(errors.New("Cannot find context with specified id (-32000)")))
	assert.True(t, IsContextLost(ErrSessionClosed))
	assert.False(t, IsContextLost(errors.New("SyntaxError: bad selector")))
	assert.False(t, IsContextLost(nil))
}

func TestExecOptionsDefaultsWindowSize(t *testing.T) {
	opts := execOptions("/usr/bin/chromium", Options{Headless: true})
	assert.Greater(t, len(opts), 10)
}

func TestLookupDevice(t *testing.T) {
	d, ok := LookupDevice("iphone 12 pro")
	assert.True(t, ok)
	assert.Equal(t, int64(390), d.Device().Width)

	_, ok = LookupDevice("Nokia 3310")
	assert.False(t, ok)

	names := DeviceNames()
	assert.Contains(t, names, DesktopDevice)
	assert.IsIncreasing(t, names)
}

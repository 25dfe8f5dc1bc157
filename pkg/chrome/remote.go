package chrome

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// waitForDebugger polls the DevTools HTTP endpoint until Chrome answers. It
// returns immediately for websocket URLs, which the allocator dials itself.
func waitForDebugger(ctx context.Context, remoteURL string, timeout time.Duration) error {
	if !strings.HasPrefix(remoteURL, "http://") && !strings.HasPrefix(remoteURL, "https://") {
		return nil
	}
	versionURL := strings.TrimRight(remoteURL, "/") + "/json/version"
	client := &http.Client{Timeout: time.Second}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("chrome debugging endpoint %s not ready within %v", remoteURL, timeout)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

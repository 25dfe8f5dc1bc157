// Package chrome locates, launches and attaches to Chrome and keeps one
// DevTools session per tab.
package chrome

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// GetChromePath returns the path to a Chrome or Chromium executable, or "".
func GetChromePath() string {
	var candidates []string
	switch runtime.GOOS {
	case "linux":
		candidates = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/opt/google/chrome/google-chrome",
		}
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			candidates = append(candidates, filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe"))
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium-browser", "chromium", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// GetFlatpakChromePath returns the wrapper script used to run a Flatpak
// Chrome, when both exist.
func GetFlatpakChromePath() string {
	if !isFlatpakChromeAvailable() {
		return ""
	}
	wrapperPath := "./scripts/chrome-flatpak-wrapper.sh"
	if _, err := os.Stat(wrapperPath); err == nil {
		return wrapperPath
	}
	return ""
}

func isFlatpakChromeAvailable() bool {
	if _, err := exec.LookPath("flatpak"); err != nil {
		return false
	}
	output, err := exec.Command("flatpak", "list", "--app", "--columns=application").Output()
	if err != nil {
		return false
	}
	out := string(output)
	return strings.Contains(out, "com.google.Chrome") || strings.Contains(out, "org.chromium.Chromium")
}

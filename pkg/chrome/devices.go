package chrome

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"go.uber.org/zap"
)

// DesktopDevice clears any emulation.
const DesktopDevice = "Desktop"

var devices = map[string]chromedp.Device{
	"iPhone 12 Pro": device.IPhone12Pro,
	"iPhone X":      device.IPhoneX,
	"iPad Pro":      device.IPadPro,
	"Galaxy S5":     device.GalaxyS5,
	"Pixel 5":       device.Pixel5,
	DesktopDevice:   device.Reset,
}

// DeviceNames lists the devices Emulate accepts.
func DeviceNames() []string {
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupDevice finds a device by name, ignoring case.
func LookupDevice(name string) (chromedp.Device, bool) {
	for n, d := range devices {
		if strings.EqualFold(n, name) {
			return d, true
		}
	}
	return nil, false
}

// Emulate applies a device's viewport, scale, touch and user agent to tab id.
func (b *Browser) Emulate(ctx context.Context, id, name string) error {
	dev, ok := LookupDevice(name)
	if !ok {
		return fmt.Errorf("unknown device %q", name)
	}
	s, err := b.Session(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Do(ctx, chromedp.Emulate(dev)); err != nil {
		return fmt.Errorf("failed to emulate %s: %w", name, err)
	}
	b.logger.Info("Emulating device", zap.String("page", id), zap.String("device", name))
	return nil
}

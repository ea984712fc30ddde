//go:build linux

package r2span

// Optional hotplug watcher for TAL device nodes, built on
// github.com/jochenvg/go-udev's udev.Monitor rather than a hand-rolled
// netlink socket.

import (
	"context"

	"github.com/jochenvg/go-udev"
)

// HotplugEvent reports a TAL device node appearing or disappearing.
type HotplugEvent struct {
	Action   string // "add" or "remove"
	DevNode  string
	Subsystem string
}

// WatchHotplug streams udev events for the given subsystem (e.g. "tty")
// until ctx is cancelled, so a caller can (re)Configure a span's TAL
// provider automatically when hardware appears.
func WatchHotplug(ctx context.Context, subsystem string, log Logger) (<-chan HotplugEvent, error) {
	if log == nil {
		log = NopLogger()
	}
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem(subsystem); err != nil {
		return nil, err
	}

	deviceCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan HotplugEvent, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errCh:
				if !ok {
					return
				}
				log.Warnf("hotplug: monitor error: %v", err)
			case dev, ok := <-deviceCh:
				if !ok {
					return
				}
				ev := HotplugEvent{
					Action:    dev.Action(),
					DevNode:   dev.Devnode(),
					Subsystem: dev.Subsystem(),
				}
				select {
				case out <- ev:
				default:
					log.Warnf("hotplug: event channel full, dropping %+v", ev)
				}
			}
		}
	}()
	return out, nil
}

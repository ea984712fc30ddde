//go:build unix

package r2span

import (
	"time"

	"golang.org/x/sys/unix"
)

// unixPoller multiplexes real channel descriptors with unix.Poll.
type unixPoller struct{}

func newPoller() Poller { return unixPoller{} }

func (unixPoller) Wait(targets []pollTarget, timeout time.Duration) ([]ChannelID, error) {
	fds := make([]unix.PollFd, 0, len(targets))
	idxToID := make([]ChannelID, 0, len(targets))
	fallback := make([]ChannelID, 0)
	for _, t := range targets {
		if t.FD < 0 {
			// No real descriptor (e.g. a test double): always treat as
			// ready rather than silently never polling it.
			fallback = append(fallback, t.ID)
			continue
		}
		var events int16
		if t.Flags&WaitRead != 0 {
			events |= unix.POLLIN
		}
		if t.Flags&WaitWrite != 0 {
			events |= unix.POLLOUT
		}
		if t.Flags&WaitOOB != 0 {
			events |= unix.POLLPRI
		}
		fds = append(fds, unix.PollFd{Fd: int32(t.FD), Events: events})
		idxToID = append(idxToID, t.ID)
	}
	if len(fds) == 0 {
		time.Sleep(timeout)
		return fallback, nil
	}
	ms := int(timeout / time.Millisecond)
	n, err := unix.Poll(fds, ms)
	if err != nil && err != unix.EINTR {
		return fallback, err
	}
	ready := fallback
	if n > 0 {
		for i, fd := range fds {
			if fd.Revents != 0 {
				ready = append(ready, idxToID[i])
			}
		}
	}
	return ready, nil
}

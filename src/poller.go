package r2span

import "time"

// pollTarget is one channel's poll interest for a single monitor
// iteration: always includes OOB, and READ when PE read is enabled.
type pollTarget struct {
	ID    ChannelID
	FD    int
	Flags WaitFlags
}

// Poller is the span-level I/O wait primitive bounded by pollCeiling.
// unixPoller (poller_unix.go, unix builds) wraps golang.org/x/sys/unix
// directly and reports targets with no real descriptor (FD < 0, e.g. test
// TAL doubles) as always ready; pollerChan (poller_chan.go, non-unix
// builds) is the portable fallback, at the cost of a single unified
// readiness mask rather than per-channel poll results.
type Poller interface {
	Wait(targets []pollTarget, timeout time.Duration) ([]ChannelID, error)
}

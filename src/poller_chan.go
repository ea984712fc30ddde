//go:build !unix

package r2span

import "time"

// pollerChan is the portable fallback poller: it cannot multiplex real
// descriptors, so it sleeps for the ceiling and reports every target
// ready with one unified readiness mask.
type pollerChan struct{}

func newPoller() Poller { return pollerChan{} }

func (pollerChan) Wait(targets []pollTarget, timeout time.Duration) ([]ChannelID, error) {
	time.Sleep(timeout)
	ids := make([]ChannelID, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	return ids, nil
}

package r2span

import (
	"context"
	"time"
)

// pollCeiling is the 20 ms loop responsiveness bound: the audio frame
// cadence this monitor must keep pace with.
const pollCeiling = 20 * time.Millisecond

// Run is the span monitor loop: a single cooperative loop that polls,
// advances every channel's FSM around one PE processing step, and
// drains upward events outside any channel lock. It returns when ctx is
// cancelled or Destroy clears the running flag.
func (s *Span) Run(ctx context.Context) {
	s.running.Store(true)
	s.monitorID = monitorIDFor(s.Name)
	defer s.shutdown()

	var lastStart time.Time
	for s.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		if !lastStart.IsZero() {
			s.recordLoop(now.Sub(lastStart).Milliseconds())
		}

		targets := s.pollTargets()
		_, _ = s.poller.Wait(targets, pollCeiling)

		lastStart = time.Now()
		s.stepChannels()
		s.drainOutbox()
	}
}

// RunOnce executes exactly one monitor iteration without polling,
// intended for deterministic tests that drive the FSM step by step.
func (s *Span) RunOnce() {
	s.stepChannels()
	s.drainOutbox()
}

func (s *Span) pollTargets() []pollTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := make([]pollTarget, 0, len(s.order))
	for _, id := range s.order {
		sc := s.channels[id]
		flags := WaitOOB
		if sc.rec.readEnabled {
			flags |= WaitRead
		}
		targets = append(targets, pollTarget{ID: id, FD: sc.tal.FD(), Flags: flags})
	}
	return targets
}

// stepChannels runs one pass over every channel: acquire its mutex,
// advance_all, process_signaling, advance_all, release.
func (s *Span) stepChannels() {
	s.mu.RLock()
	order := append([]ChannelID(nil), s.order...)
	s.mu.RUnlock()

	for _, id := range order {
		sc, ok := s.channelFor(id)
		if !ok {
			continue
		}
		sc.tal.Mutex().Lock()
		sc.rec.advanceAll(sc.tal)
		if err := sc.rec.pe.ProcessSignaling(); err != nil {
			s.log.Errorf("chan=%d monitor: process signaling: %v", id, err)
		}
		sc.rec.advanceAll(sc.tal)
		sc.tal.Mutex().Unlock()
	}
}

// drainOutbox delivers every queued upward event with no channel lock
// held, so listener code may re-enter TAL without deadlock.
func (s *Span) drainOutbox() {
	if len(s.outbox) == 0 {
		return
	}
	pending := s.outbox
	s.outbox = nil
	for _, e := range pending {
		s.bus.Emit(e)
	}
}

// shutdown marks every PE channel blocked and clears the running flag.
func (s *Span) shutdown() {
	s.running.Store(false)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		sc := s.channels[id]
		if err := sc.rec.pe.SetBlocked(true); err != nil {
			s.log.Errorf("chan=%d monitor: block on shutdown: %v", id, err)
		}
	}
}

func monitorIDFor(name string) string {
	return "monitor:" + name
}

package r2span

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// spanChannel pairs a timeslot's borrowed TAL channel with the span's
// own immutable-after-creation call record.
type spanChannel struct {
	tal TALChannel
	rec *CallRecord
}

// Span is the per-trunk context: one PE context, one call record per
// timeslot, and the loop instrumentation the control surface's
// `status`/`loopstats` commands read.
type Span struct {
	Name string

	pe  PEContext
	cfg SpanConfig
	bus TALBus
	log Logger

	mu       sync.RWMutex // guards channels/order; not held during advance
	channels map[ChannelID]*spanChannel
	order    []ChannelID

	// outbox is only ever touched by the monitor goroutine: filled while
	// a channel lock is held, drained only after every channel lock for
	// this iteration has been released.
	outbox []UpwardEvent

	running atomic.Bool

	statsMu    sync.Mutex
	maxLoopMS  int64
	totalLoops uint64
	buckets    [11]uint64 // index = min(ms/10, 10)

	monitorID string

	poller Poller
}

// ChannelStatus is what the `status` admin command reports per channel.
type ChannelStatus struct {
	Channel ChannelID
	State   CallState
	TxCAS   uint8
	RxCAS   uint8
}

// SpanStatus is what the `status` admin command reports.
type SpanStatus struct {
	Variant         string
	MaxANI          int
	MaxDNIS         int
	ANIFirst        bool
	ImmediateAccept bool
	MonitorID       string
	MaxLoopMS       int64
	TotalLoops      uint64
	Channels        []ChannelStatus
}

// LoopStats is the `loopstats` histogram.
type LoopStats struct {
	Buckets    [11]uint64
	TotalLoops uint64
}

func (s *Span) recordLoop(elapsedMS int64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if elapsedMS > s.maxLoopMS {
		s.maxLoopMS = elapsedMS
	}
	idx := elapsedMS / 10
	if idx > 10 {
		idx = 10
	}
	s.buckets[idx]++
	s.totalLoops++
}

// Status returns a snapshot for the control surface's `status` command.
func (s *Span) Status() SpanStatus {
	s.statsMu.Lock()
	maxLoopMS, totalLoops := s.maxLoopMS, s.totalLoops
	s.statsMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := SpanStatus{
		Variant:         s.cfg.Variant,
		MaxANI:          s.cfg.MaxANI,
		MaxDNIS:         s.cfg.MaxDNIS,
		ANIFirst:        s.cfg.GetANIFirst,
		ImmediateAccept: s.cfg.ImmediateAccept,
		MonitorID:       s.monitorID,
		MaxLoopMS:       maxLoopMS,
		TotalLoops:      totalLoops,
	}
	for _, id := range s.order {
		sc := s.channels[id]
		cd := sc.tal.CallerData()
		tx, rx, _ := s.casSnapshot(sc.tal)
		out.Channels = append(out.Channels, ChannelStatus{
			Channel: id,
			State:   cd.State,
			TxCAS:   tx,
			RxCAS:   rx,
		})
	}
	return out
}

// casSnapshot reads the channel's current CAS bits through an optional
// CAS() method on the TAL channel; channels without one report zeros.
func (s *Span) casSnapshot(tal TALChannel) (tx, rx uint8, err error) {
	type casReader interface {
		CAS() (tx, rx uint8)
	}
	if cr, ok := tal.(casReader); ok {
		tx, rx = cr.CAS()
	}
	return tx, rx, nil
}

// LoopStats returns the loop-time histogram for the `loopstats` command.
func (s *Span) LoopStats() LoopStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return LoopStats{Buckets: s.buckets, TotalLoops: s.totalLoops}
}

// Variants reports this span's PE's supported R2 variants for the
// `variants <span>` command.
func (s *Span) Variants() []string {
	return s.pe.Variants()
}

func (s *Span) channelFor(id ChannelID) (*spanChannel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.channels[id]
	return sc, ok
}

// Block administratively blocks (or unblocks) a channel, refusing if a
// call is in progress.
func (s *Span) Block(id ChannelID, blocked bool) error {
	sc, ok := s.channelFor(id)
	if !ok {
		return fmt.Errorf("r2span: no such channel %d", id)
	}
	sc.tal.Mutex().Lock()
	defer sc.tal.Mutex().Unlock()
	if blocked && sc.rec.ftdmCallStarted {
		return fmt.Errorf("r2span: channel %d has a call in progress", id)
	}
	return sc.rec.pe.SetBlocked(blocked)
}

// Progress moves an inbound call from RING to PROGRESS (or straight to
// PROGRESS_MEDIA when withMedia is set), the application-level decision to
// start driving ringback/early media before the call is answered. Outbound
// calls never need this: OnCallAccepted moves them from DIALING to
// PROGRESS_MEDIA without a separate caller-visible step.
func (s *Span) Progress(id ChannelID, withMedia bool) error {
	sc, ok := s.channelFor(id)
	if !ok {
		return fmt.Errorf("r2span: no such channel %d", id)
	}
	sc.tal.Mutex().Lock()
	defer sc.tal.Mutex().Unlock()
	cd := sc.tal.CallerData()
	next := StateProgress
	if withMedia {
		next = StateProgressMedia
	}
	if err := sc.rec.requestState(cd, next); err != nil {
		return err
	}
	sc.rec.advanceAll(sc.tal)
	return nil
}

// Answer requests the channel move to UP. If the accept handshake is still
// in flight, the answer is deferred (answer pending) and OnCallAccepted
// completes it. Returns ErrAcceptPending if an earlier answer is already
// waiting on the handshake.
func (s *Span) Answer(id ChannelID) error {
	sc, ok := s.channelFor(id)
	if !ok {
		return fmt.Errorf("r2span: no such channel %d", id)
	}
	sc.tal.Mutex().Lock()
	defer sc.tal.Mutex().Unlock()
	cd := sc.tal.CallerData()
	if sc.rec.acceptingPending(cd) && sc.rec.answerPending {
		return ErrAcceptPending
	}
	if err := sc.rec.requestState(cd, StateUp); err != nil {
		return err
	}
	sc.rec.advanceAll(sc.tal)
	return nil
}

// ErrAcceptPending is returned by Span.Answer while an earlier answer is
// still deferred behind the accept handshake barrier; that answer is
// completed by OnCallAccepted without a retry.
var ErrAcceptPending = fmt.Errorf("r2span: accept handshake in progress")

// Dial starts an outbound call on an idle channel: per-call fields are
// reset on each transition into DIALING.
func (s *Span) Dial(id ChannelID, ani, dnis, category string) error {
	sc, ok := s.channelFor(id)
	if !ok {
		return fmt.Errorf("r2span: no such channel %d", id)
	}
	sc.tal.Mutex().Lock()
	defer sc.tal.Mutex().Unlock()
	cd := sc.tal.CallerData()
	if cd.State != StateDown {
		return fmt.Errorf("r2span: channel %d not idle (state=%s)", id, cd.State)
	}
	sc.rec.reset(logNameFor(s.Name, id))
	sc.rec.ftdmCallStarted = true
	cd.Direction = DirectionOutbound
	cd.ANI = append(cd.ANI[:0], ani...)
	cd.DNIS = append(cd.DNIS[:0], dnis...)
	cd.Category = category
	if err := sc.tal.Open(); err != nil {
		return fmt.Errorf("r2span: tal open: %w", err)
	}
	if err := sc.rec.pe.Dial(ani, dnis, category); err != nil {
		return fmt.Errorf("r2span: pe dial: %w", err)
	}
	if err := sc.rec.requestState(cd, StateDialing); err != nil {
		return err
	}
	sc.rec.advanceAll(sc.tal)
	return nil
}

// Hangup requests local teardown with the given cause.
func (s *Span) Hangup(id ChannelID, cause TALCause) error {
	sc, ok := s.channelFor(id)
	if !ok {
		return fmt.Errorf("r2span: no such channel %d", id)
	}
	sc.tal.Mutex().Lock()
	defer sc.tal.Mutex().Unlock()
	cd := sc.tal.CallerData()
	cd.HangupCause = cause
	if err := sc.rec.requestState(cd, StateHangup); err != nil {
		return err
	}
	sc.rec.advanceAll(sc.tal)
	return nil
}

package r2span

import "fmt"

const maxLogNameLen = 254

// CallRecord is the per-timeslot call state machine's bookkeeping. One is
// allocated per channel at span configure and lives for the span's
// lifetime; its fields (other than pe) are zeroed on each call init/dial.
type CallRecord struct {
	channel ChannelID
	pe      PEChannel

	accepted       bool
	answerPending  bool
	answered       bool
	disconnectRcvd bool
	ftdmCallStarted bool
	protocolError  bool
	cancelled      bool // local setup-time teardown via CANCEL, never acked by PE

	// doubleAnswer and forcedRelease are span-wide options copied in at
	// channel allocation; unlike the fields above they are never reset
	// between calls.
	doubleAnswer  bool
	forcedRelease bool

	cachedState CallState

	aniIdx  int
	dnisIdx int

	// readEnabled mirrors the last EnableRead request sent to PE, so the
	// span monitor's poll mask knows whether to watch this channel for
	// READ without asking PE directly.
	readEnabled bool

	logName  string
	diagTag  string
	txDrops  int

	emit func(UpwardEvent)
	bus  TALBus
	dump *diagDump

	log Logger
}

// NewCallRecord allocates a call record bound to its immutable PE channel
// handle: the handle itself is never reset, only the per-call fields are.
func NewCallRecord(ch ChannelID, pe PEChannel, bus TALBus, emit func(UpwardEvent), log Logger) *CallRecord {
	return &CallRecord{
		channel: ch,
		pe:      pe,
		bus:     bus,
		emit:    emit,
		log:     log,
	}
}

// reset zeroes every per-call field but the PE channel handle, so stale
// data from a prior call never leaks into the next one on this timeslot.
func (r *CallRecord) reset(logName string) {
	r.accepted = false
	r.answerPending = false
	r.answered = false
	r.disconnectRcvd = false
	r.ftdmCallStarted = false
	r.protocolError = false
	r.cancelled = false
	r.cachedState = StateDown
	r.aniIdx = 0
	r.dnisIdx = 0
	if len(logName) > maxLogNameLen {
		logName = logName[:maxLogNameLen]
	}
	r.logName = logName
	r.diagTag = fmt.Sprintf("c%d", r.channel)
	r.txDrops = 0
	r.dump = nil
}

// acceptingPending reports whether the accept handshake barrier is held:
// accepting_pending ≡ inbound ∧ ¬accepted ∧ state ∈ {PROGRESS, PROGRESS_MEDIA, UP}.
func (r *CallRecord) acceptingPending(cd *CallerData) bool {
	if cd.Direction != DirectionInbound || r.accepted {
		return false
	}
	switch cd.State {
	case StateProgress, StateProgressMedia, StateUp:
		return true
	default:
		return false
	}
}

// driveAnswer moves the channel to UP on a PE-reported answer, tolerating
// a duplicate answer request (some switches re-send the backward
// group-B answer signal): once answered, a further call is always a
// no-op, logged at warning level unless doubleAnswer is set.
func (r *CallRecord) driveAnswer(cd *CallerData) {
	if r.answered {
		if !r.doubleAnswer {
			r.log.Warnf("chan=%d fsm: duplicate answer ignored", r.channel)
		}
		return
	}
	if err := r.requestState(cd, StateUp); err != nil {
		r.log.Errorf("chan=%d fsm: %v", r.channel, err)
		return
	}
	r.answered = true
}

// setReadEnabled drives PE's EnableRead hook and records the result for
// the span monitor's poll mask.
func (r *CallRecord) setReadEnabled(enabled bool) error {
	if err := r.pe.EnableRead(enabled); err != nil {
		return err
	}
	r.readEnabled = enabled
	return nil
}

// queueEvent appends an upward notification for the monitor to drain
// after releasing the channel lock, except for EventStart which the
// caller dispatches synchronously for its decision.
func (r *CallRecord) queueEvent(e UpwardEvent) {
	e.Channel = r.channel
	r.emit(e)
}

// offerStart synchronously asks the TALBus listener whether it accepts
// the offered call. This is the one event kind that needs an answer
// before the FSM can proceed, so unlike queueEvent it is not deferred:
// the listener contract for START is to answer quickly and not re-enter
// TAL from inside Emit.
func (r *CallRecord) offerStart(cd *CallerData) bool {
	decision := r.bus.Emit(UpwardEvent{
		Kind:     EventStart,
		Channel:  r.channel,
		ANI:      string(cd.ANI),
		DNIS:     string(cd.DNIS),
		Category: cd.Category,
	})
	return decision != nil && decision.Accept
}

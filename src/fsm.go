package r2span

// inboundTransitions and outboundTransitions encode the valid call-state
// transition table per call direction. RING -> CANCEL is the path taken
// when the listener rejects START. CANCEL -> HANGUP is valid regardless
// of direction and is checked separately.
var inboundTransitions = map[CallState][]CallState{
	StateDown:           {StateCollect},
	StateCollect:        {StateRing, StateTerminating},
	StateRing:           {StateHangup, StateTerminating, StateProgress, StateProgressMedia, StateUp, StateCancel},
	StateProgress:       {StateHangup, StateTerminating, StateProgressMedia, StateUp},
	StateProgressMedia:  {StateHangup, StateTerminating, StateUp},
	StateUp:             {StateHangup, StateTerminating},
	StateTerminating:    {StateHangup},
	StateHangup:         {StateDown},
}

var outboundTransitions = map[CallState][]CallState{
	StateDown:          {StateDialing},
	StateDialing:       {StateHangup, StateTerminating, StateProgressMedia},
	StateProgressMedia: {StateHangup, StateTerminating, StateUp},
	StateUp:            {StateHangup, StateTerminating},
	StateTerminating:   {StateHangup},
	StateHangup:        {StateDown},
}

func transitionAllowed(dir Direction, from, to CallState) bool {
	if from == StateCancel && to == StateHangup {
		return true
	}
	table := inboundTransitions
	if dir == DirectionOutbound {
		table = outboundTransitions
	}
	for _, candidate := range table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// requestState is the single entry point for moving a channel to a new
// FSM state: every public TAL operation and every internal entry action
// funnels through it. Callers always hold tal.Mutex() first, so the
// table is never traversed concurrently for the same channel.
func (r *CallRecord) requestState(cd *CallerData, next CallState) error {
	if !transitionAllowed(cd.Direction, cd.State, next) {
		return &invalidTransitionError{From: cd.State, To: next, Direction: cd.Direction}
	}
	cd.State = next
	cd.StateChangeFlag = true
	return nil
}

// AnswerPending reports whether a TAL-side caller of Answer is currently
// being deferred by the accept-pending barrier.
func (r *CallRecord) AnswerPending() bool {
	return r.answerPending
}

// advanceAll repeatedly runs advance while the state-change flag is set
// and the cached state differs from the current state: this collapses
// chains of immediate transitions and avoids re-running an entry
// handler when only the accept barrier is holding the flag.
func (r *CallRecord) advanceAll(tal TALChannel) {
	cd := tal.CallerData()
	for cd.StateChangeFlag && r.cachedState != cd.State {
		r.advance(tal, cd)
	}
}

// advance runs the entry action for the current state exactly once,
// then marks it processed by updating cachedState, then either releases
// the state-change flag or leaves it set: when the entry action itself
// requested a further state (so advanceAll runs that entry next), or, for
// the accept-pending window, so blocked TAL callers keep waiting until
// OnCallAccepted/OnCallDisconnect/OnProtocolError clears it.
func (r *CallRecord) advance(tal TALChannel, cd *CallerData) {
	state := cd.State
	r.runEntry(tal, cd, state)
	r.cachedState = state
	if cd.State != state {
		return
	}
	if !r.acceptingPending(cd) {
		cd.StateChangeFlag = false
	}
}

func (r *CallRecord) runEntry(tal TALChannel, cd *CallerData, state CallState) {
	switch state {
	case StateCollect, StateDialing:
		r.enterCollectOrDialing(tal, cd)
	case StateRing:
		r.enterRing(tal, cd)
	case StateProgress, StateProgressMedia:
		r.enterProgress(tal, cd, state)
	case StateUp:
		r.enterUp(tal, cd)
	case StateTerminating:
		r.enterTerminating(tal, cd)
	case StateHangup:
		r.enterHangup(tal, cd)
	case StateCancel:
		r.enterCancel(tal, cd)
	case StateDown:
		r.enterDown(tal, cd)
	}
}

func (r *CallRecord) enterCollectOrDialing(tal TALChannel, cd *CallerData) {
	if cd.Interval == 0 {
		r.log.Warnf("chan=%d fsm: entering %s with zero TAL interval", r.channel, cd.State)
	}
	if err := r.setReadEnabled(true); err != nil {
		r.log.Errorf("chan=%d fsm: enable read: %v", r.channel, err)
	}
}

func (r *CallRecord) enterRing(tal TALChannel, cd *CallerData) {
	if !r.offerStart(cd) {
		if err := r.requestState(cd, StateCancel); err != nil {
			r.log.Errorf("chan=%d fsm: %v", r.channel, err)
		}
		return
	}
	r.ftdmCallStarted = true
}

func (r *CallRecord) enterProgress(tal TALChannel, cd *CallerData, state CallState) {
	if cd.Direction == DirectionInbound {
		if !r.accepted {
			if err := r.pe.Accept(); err != nil {
				r.log.Errorf("chan=%d fsm: pe accept: %v", r.channel, err)
			}
		}
		return
	}
	// Outbound: DIALING lands here directly (no separate PROGRESS state
	// in the outbound table).
	r.queueEvent(UpwardEvent{Kind: EventProceed})
	r.queueEvent(UpwardEvent{Kind: EventProgressMedia})
}

func (r *CallRecord) enterUp(tal TALChannel, cd *CallerData) {
	switch {
	case cd.Direction == DirectionInbound && !r.accepted:
		if err := r.pe.Accept(); err != nil {
			r.log.Errorf("chan=%d fsm: pe accept: %v", r.channel, err)
		}
		r.answerPending = true
	case cd.Direction == DirectionInbound && r.accepted:
		if err := r.pe.Answer(); err != nil {
			r.log.Errorf("chan=%d fsm: pe answer: %v", r.channel, err)
		}
	default:
		r.queueEvent(UpwardEvent{Kind: EventUp})
	}
}

func (r *CallRecord) enterTerminating(tal TALChannel, cd *CallerData) {
	if !r.ftdmCallStarted {
		_ = r.requestState(cd, StateHangup)
		return
	}
	// The listener owns the HANGUP transition from here: it observes STOP
	// and is expected to drive the channel to HANGUP itself once it has
	// unwound any call-leg bookkeeping.
	r.queueEvent(UpwardEvent{Kind: EventStop, Cause: cd.HangupCause})
}

func (r *CallRecord) enterHangup(tal TALChannel, cd *CallerData) {
	if r.cancelled {
		_ = r.requestState(cd, StateDown)
		return
	}
	switch {
	case !r.disconnectRcvd:
		cause := talCauseToPE(cd.HangupCause)
		if r.forcedRelease {
			cause = PECauseForcedRelease
		}
		if err := r.pe.Disconnect(cause); err != nil {
			r.log.Errorf("chan=%d fsm: pe disconnect: %v", r.channel, err)
		}
		// Wait for OnCallEnd to reach DOWN; no self-transition here.
	case !r.protocolError:
		if err := r.pe.DisconnectAck(PECauseNormalClearing); err != nil {
			r.log.Errorf("chan=%d fsm: pe disconnect ack: %v", r.channel, err)
		}
	default:
		_ = r.requestState(cd, StateDown)
	}
}

func (r *CallRecord) enterCancel(tal TALChannel, cd *CallerData) {
	if err := r.pe.Disconnect(PECauseOutOfOrder); err != nil {
		r.log.Errorf("chan=%d fsm: pe disconnect: %v", r.channel, err)
	}
	r.cancelled = true
	_ = r.requestState(cd, StateHangup)
}

func (r *CallRecord) enterDown(tal TALChannel, cd *CallerData) {
	if r.txDrops > 0 {
		r.log.Warnf("chan=%d fsm: %d tx drops this call", r.channel, r.txDrops)
	}
	if err := r.setReadEnabled(false); err != nil {
		r.log.Errorf("chan=%d fsm: disable read: %v", r.channel, err)
	}
	if err := tal.Close(); err != nil {
		r.log.Errorf("chan=%d fsm: tal close: %v", r.channel, err)
	}
	r.ftdmCallStarted = false
	r.log.Debugf("chan=%d fsm: idle", r.channel)
}

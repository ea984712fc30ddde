package r2span

import "strconv"

// translator implements PECallbacks: each method runs synchronously
// inside PEChannel.ProcessSignaling, which the span monitor calls with
// the channel's mutex held.
type translator struct {
	span *Span
}

func newTranslator(span *Span) *translator {
	return &translator{span: span}
}

func (t *translator) lookup(ch ChannelID) (*spanChannel, bool) {
	return t.span.channelFor(ch)
}

// OnCallInit may fire immediately after OnCallEnd returns. It refuses unless the channel is idle and in DOWN, then opens the TAL
// channel, resets the call record, and moves to COLLECT.
func (t *translator) OnCallInit(ch ChannelID) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	if cd.State != StateDown || sc.rec.ftdmCallStarted {
		t.span.log.Errorf("chan=%d translator: on_call_init while not idle (state=%s)", ch, cd.State)
		return
	}
	logName := logNameFor(t.span.Name, ch)
	sc.rec.reset(logName)
	cd.Direction = DirectionInbound
	cd.ANI = cd.ANI[:0]
	cd.DNIS = cd.DNIS[:0]
	cd.Category = ""
	if err := sc.tal.Open(); err != nil {
		t.span.log.Errorf("chan=%d translator: tal open: %v", ch, err)
		return
	}
	if t.span.cfg.MFDumpSize > 0 {
		startDiagDump(sc, t.span.cfg, logName)
	}
	if err := sc.rec.requestState(cd, StateCollect); err != nil {
		t.span.log.Errorf("chan=%d translator: %v", ch, err)
		return
	}
	sc.rec.advanceAll(sc.tal)
}

// OnCallOffered moves the channel to RING once ANI/DNIS/category have
// arrived, and stops any diagnostic dump started at init (setup concluded
// cleanly).
func (t *translator) OnCallOffered(ch ChannelID, ani, dnis, category string) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	cd.ANI = append(cd.ANI[:0], ani...)
	cd.DNIS = append(cd.DNIS[:0], dnis...)
	cd.Category = category
	stopDiagDump(sc)
	if err := sc.rec.requestState(cd, StateRing); err != nil {
		t.span.log.Errorf("chan=%d translator: %v", ch, err)
		return
	}
	sc.rec.advanceAll(sc.tal)
}

// OnANIDigit appends one ANI digit, silently dropping once full.
func (t *translator) OnANIDigit(ch ChannelID, digit byte) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	sc.tal.CallerData().AppendANI(digit)
	sc.rec.aniIdx++
}

// OnDNISDigit appends one DNIS digit, emits COLLECTED_DIGIT, and asks the
// TALBus listener whether to keep collecting. The digit that fills the
// buffer to max_dnis itself gets Stop, not the one after it: the buffer
// is full the moment this digit lands, so there is nothing left to
// collect.
func (t *translator) OnDNISDigit(ch ChannelID, digit byte) DNISAction {
	sc, ok := t.lookup(ch)
	if !ok {
		return DNISStop
	}
	cd := sc.tal.CallerData()
	accepted := cd.AppendDNIS(digit)
	if accepted {
		sc.rec.dnisIdx++
	}
	decision := t.span.bus.Emit(UpwardEvent{Kind: EventCollectedDigit, Channel: ch, Digit: digit})
	if decision != nil && !decision.Accept {
		return DNISStop
	}
	if !accepted {
		return DNISStop
	}
	if cd.DNISFull() {
		return DNISStop
	}
	return DNISContinue
}

// OnCallAccepted clears the accept-pending barrier, disables PE reads,
// and either completes a deferred answer (inbound) or moves straight to
// PROGRESS_MEDIA (outbound).
func (t *translator) OnCallAccepted(ch ChannelID, dir Direction) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	sc.rec.accepted = true
	if err := sc.rec.setReadEnabled(false); err != nil {
		t.span.log.Errorf("chan=%d translator: disable read: %v", ch, err)
	}
	cd.StateChangeFlag = false
	if dir == DirectionInbound {
		if sc.rec.answerPending {
			if err := sc.rec.pe.Answer(); err != nil {
				t.span.log.Errorf("chan=%d translator: pe answer: %v", ch, err)
			}
			sc.rec.answerPending = false
			sc.rec.queueEvent(UpwardEvent{Kind: EventUp})
		}
		return
	}
	if err := sc.rec.requestState(cd, StateProgressMedia); err != nil {
		t.span.log.Errorf("chan=%d translator: %v", ch, err)
		return
	}
	sc.rec.advanceAll(sc.tal)
}

// OnCallAnswered moves forward (outbound) calls to UP, tolerating a
// duplicate answer report via CallRecord.driveAnswer.
func (t *translator) OnCallAnswered(ch ChannelID) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	if cd.Direction != DirectionOutbound {
		return
	}
	sc.rec.driveAnswer(cd)
	sc.rec.advanceAll(sc.tal)
}

// OnCallDisconnect clears the accept-pending barrier and either
// acknowledges a local teardown or starts the normal peer-disconnect path.
func (t *translator) OnCallDisconnect(ch ChannelID, cause PECause) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	cd.StateChangeFlag = false
	sc.rec.disconnectRcvd = true
	if cd.State == StateHangup {
		if err := sc.rec.pe.DisconnectAck(PECauseNormalClearing); err != nil {
			t.span.log.Errorf("chan=%d translator: disconnect ack: %v", ch, err)
		}
		return
	}
	cd.HangupCause = peCauseToTAL(cause)
	if err := sc.rec.requestState(cd, StateTerminating); err != nil {
		t.span.log.Errorf("chan=%d translator: %v", ch, err)
		return
	}
	sc.rec.advanceAll(sc.tal)
}

// OnCallEnd moves the channel to DOWN and drains the transition
// synchronously: PE may call OnCallInit again before ProcessSignaling
// even returns, and that re-init requires the channel to already be idle
// in DOWN, not merely have DOWN requested.
func (t *translator) OnCallEnd(ch ChannelID) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	if err := sc.rec.requestState(cd, StateDown); err != nil {
		t.span.log.Errorf("chan=%d translator: %v", ch, err)
		return
	}
	sc.rec.advanceAll(sc.tal)
}

// OnCallRead is a documented no-op: keep as no-op rather than inventing
// behavior PE documentation doesn't specify.
func (t *translator) OnCallRead(ch ChannelID, buf []byte) {}

// OnProtocolError dumps diagnostic buffers, clears the accept-pending
// barrier, and moves to TERMINATING (or straight to DOWN from HANGUP).
func (t *translator) OnProtocolError(ch ChannelID, reason string) {
	sc, ok := t.lookup(ch)
	if !ok {
		return
	}
	cd := sc.tal.CallerData()
	if cd.State == StateDown {
		t.span.log.Warnf("chan=%d translator: protocol error while idle: %s", ch, reason)
		return
	}
	dumpDiagBuffers(sc)
	cd.StateChangeFlag = false
	sc.rec.disconnectRcvd = true
	sc.rec.protocolError = true
	if cd.State == StateHangup {
		if err := sc.rec.requestState(cd, StateDown); err != nil {
			t.span.log.Errorf("chan=%d translator: %v", ch, err)
			return
		}
		sc.rec.advanceAll(sc.tal)
		return
	}
	cd.HangupCause = TALCauseProtocolError
	if err := sc.rec.requestState(cd, StateTerminating); err != nil {
		t.span.log.Errorf("chan=%d translator: %v", ch, err)
		return
	}
	sc.rec.advanceAll(sc.tal)
}

// OnLineBlocked / OnLineIdle never touch FSM state.
func (t *translator) OnLineBlocked(ch ChannelID) {
	t.span.bus.Emit(UpwardEvent{Kind: EventSigStatusChanged, Channel: ch, SigStatus: SigStatusSuspended})
}

func (t *translator) OnLineIdle(ch ChannelID) {
	t.span.bus.Emit(UpwardEvent{Kind: EventSigStatusChanged, Channel: ch, SigStatus: SigStatusUp})
}

func logNameFor(spanName string, ch ChannelID) string {
	return spanName + ".c" + strconv.Itoa(int(ch))
}

package r2span

import "fmt"

// WaitFlags are the readiness bits the PE adapter's Wait hook polls for
// and reports back through the `wait` hook.
type WaitFlags uint8

const (
	WaitRead WaitFlags = 1 << iota
	WaitWrite
	WaitOOB
)

func (f WaitFlags) String() string {
	s := ""
	if f&WaitRead != 0 {
		s += "R"
	}
	if f&WaitWrite != 0 {
		s += "W"
	}
	if f&WaitOOB != 0 {
		s += "O"
	}
	if s == "" {
		return "-"
	}
	return s
}

// OOBKind is the kind of out-of-band condition GetOOBEvent can report.
type OOBKind int

const (
	OOBNone OOBKind = iota
	OOBCASChange
	OOBAlarmOn
	OOBAlarmOff
)

// OOBEvent is what a TALChannel reports through GetOOBEvent.
type OOBEvent struct {
	Kind OOBKind
	CAS  uint8 // valid when Kind == OOBCASChange
}

// DNISAction is the translator's decision after feeding one digit to the
// PE's on_dnis_digit callback path.
type DNISAction int

const (
	DNISContinue DNISAction = iota
	DNISStop
)

// UpwardEventKind enumerates the notifications the translator places on a
// Span's outbox for delivery to a TALBus.
type UpwardEventKind int

const (
	EventSigStatusChanged UpwardEventKind = iota
	EventStart
	EventCollectedDigit
	EventProceed
	EventProgressMedia
	EventUp
	EventStop
	EventProtocolError
)

func (k UpwardEventKind) String() string {
	switch k {
	case EventSigStatusChanged:
		return "SIGSTATUS_CHANGED"
	case EventStart:
		return "START"
	case EventCollectedDigit:
		return "COLLECTED_DIGIT"
	case EventProceed:
		return "PROCEED"
	case EventProgressMedia:
		return "PROGRESS_MEDIA"
	case EventUp:
		return "UP"
	case EventStop:
		return "STOP"
	case EventProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return fmt.Sprintf("UpwardEventKind(%d)", int(k))
	}
}

// UpwardEvent is one notification for the TALBus. Most kinds are queued
// by the FSM/translator under the channel lock and drained by the Span
// monitor loop outside any channel lock, so listener code can safely
// re-enter TAL from inside their handlers. START and COLLECTED_DIGIT need
// the listener's decision and SIGSTATUS_CHANGED is sent straight from
// its PE callback: these three are emitted synchronously, with the
// channel lock held when they come from the monitor loop.
type UpwardEvent struct {
	Kind      UpwardEventKind
	Channel   ChannelID
	ANI       string
	DNIS      string
	Category  string
	Digit     byte
	SigStatus SigStatus
	Cause     TALCause
	Reason    string
}

// StartDecision is the synchronous reply a TALBus gives to an EventStart
// notification: whether the listener accepts the offered call. For
// EventCollectedDigit a non-nil decision with Accept false stops DNIS
// collection. Nil for every other event kind.
type StartDecision struct {
	Accept bool
}

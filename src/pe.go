package r2span

// PE is the external R2 protocol engine. It is a black box: this module
// never implements R2 tone timing or CAS bit semantics, only the
// contract a PE binding must satisfy to be driven by a Span.
type PE interface {
	// NewContext allocates one PE instance scoped to a span. cb receives
	// the upward callbacks for every channel opened on the returned
	// PEContext.
	NewContext(cfg PEContextConfig, cb PECallbacks) (PEContext, error)
}

// PEContextConfig carries the span-wide options a PE binding needs.
type PEContextConfig struct {
	Variant                string
	DefaultCategory        string
	MaxANI                 int
	MaxDNIS                int
	LogDir                 string
	AdvancedProtocolFile   string
	MFBackTimeoutMS        int
	MeteringPulseTimeoutMS int
	ImmediateAccept        bool
	SkipCategory           bool
	GetANIFirst            bool
	DoubleAnswer           bool
	ChargeCalls            bool
	ForcedRelease          bool
	AllowCollectCalls      bool
}

// PEChannelIO is the set of I/O hooks a PE channel calls back into,
// implemented by peAdapter on top of a TALChannel.
type PEChannelIO interface {
	SetCAS(bits uint8) error
	GetCAS() (uint8, error)
	FlushTX() error
	Write(buf []byte) (int, error)
	Read(buf []byte) (int, error)
	Wait(flags WaitFlags, block bool) (WaitFlags, error)
	GetOOBEvent() (OOBEvent, error)
	Open() error
	Close() error
	Setup() error
}

// PEContext is one configured PE instance for a span.
type PEContext interface {
	// OpenChannel binds a timeslot to io, returning the PEChannel handle
	// the monitor loop and FSM drive.
	OpenChannel(timeslot ChannelID, io PEChannelIO) (PEChannel, error)
	// Variants reports the R2 signaling variants this PE build supports,
	// backing the `variants` control-surface command.
	Variants() []string
	Close() error
}

// PEChannel is the per-timeslot handle the Span monitor and FSM use to
// drive the protocol engine.
type PEChannel interface {
	// ProcessSignaling advances PE state by one step, synchronously
	// invoking zero or more PECallbacks methods. Called under the
	// channel's lock.
	ProcessSignaling() error
	// Accept requests the PE send the accept signal for an inbound call,
	// or is a no-op request marker for an outbound call.
	Accept() error
	// Answer requests the PE send the answer signal.
	Answer() error
	// Dial requests the PE seize the line and send ANI/DNIS for an
	// outbound call.
	Dial(ani, dnis, category string) error
	// Disconnect requests PE-side teardown with the given cause, awaiting
	// OnCallEnd to confirm it. Used the first time HANGUP is entered for a
	// call, before any disconnect has been received from PE.
	Disconnect(cause PECause) error
	// DisconnectAck acknowledges a disconnect PE already reported via
	// OnCallDisconnect; unlike Disconnect it never expects a fresh
	// OnCallEnd cycle.
	DisconnectAck(cause PECause) error
	// EnableRead toggles PE-side audio reads, driven by the
	// COLLECT/DIALING and DOWN entry actions.
	EnableRead(enabled bool) error
	// SetBlocked administratively blocks or unblocks the channel, driven
	// by the control surface's `block`/`unblock` commands.
	SetBlocked(blocked bool) error
	Close() error
}

// PECallbacks are the upward notifications a PEChannel calls into
// synchronously from ProcessSignaling. Implemented by the translator.
type PECallbacks interface {
	OnCallInit(ch ChannelID)
	OnLineBlocked(ch ChannelID)
	OnLineIdle(ch ChannelID)
	OnCallOffered(ch ChannelID, ani, dnis, category string)
	OnANIDigit(ch ChannelID, digit byte)
	OnDNISDigit(ch ChannelID, digit byte) DNISAction
	OnCallAccepted(ch ChannelID, dir Direction)
	OnCallAnswered(ch ChannelID)
	OnCallDisconnect(ch ChannelID, cause PECause)
	OnCallEnd(ch ChannelID)
	// OnCallRead is invoked once PE has media to offer the channel's own
	// read path; deliberately a documented no-op, since media flows
	// through TALChannel.Read/Write instead.
	OnCallRead(ch ChannelID, buf []byte)
	OnProtocolError(ch ChannelID, reason string)
}

package r2span

import "sync"

// LoopbackPE is a reference PE binding with no real R2 tone engine behind
// it: each PEChannel method just records what the FSM asked for, and
// callbacks are injected explicitly via the Inject* methods. It exists so
// this module has something runnable end to end (tests, cmd/r2span demo
// runs) without depending on a real protocol-engine binding, which this
// module treats as an external black box it never implements.
type LoopbackPE struct {
	variants []string
}

// NewLoopbackPE returns a PE reporting the given variants (or a default
// set if none given).
func NewLoopbackPE(variants ...string) *LoopbackPE {
	if len(variants) == 0 {
		variants = []string{"ITU"}
	}
	return &LoopbackPE{variants: variants}
}

func (p *LoopbackPE) NewContext(cfg PEContextConfig, cb PECallbacks) (PEContext, error) {
	return &loopbackContext{pe: p, cfg: cfg, cb: cb}, nil
}

type loopbackContext struct {
	pe  *LoopbackPE
	cfg PEContextConfig
	cb  PECallbacks
}

func (c *loopbackContext) OpenChannel(ts ChannelID, io PEChannelIO) (PEChannel, error) {
	return &LoopbackChannel{ctx: c, ts: ts, io: io}, nil
}

func (c *loopbackContext) Variants() []string { return c.pe.variants }
func (c *loopbackContext) Close() error       { return nil }

// LoopbackChannel is the per-timeslot reference PEChannel. Calls block
// waiting on nothing; they simply record the last request and let test
// code call the matching Inject* to simulate PE's own async notification.
type LoopbackChannel struct {
	ctx *loopbackContext
	ts  ChannelID
	io  PEChannelIO

	mu                  sync.Mutex
	queue               []func(PECallbacks)
	blocked             bool
	lastDisconnectCause PECause
}

func (l *LoopbackChannel) enqueue(f func(PECallbacks)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, f)
}

// ProcessSignaling delivers exactly one queued callback, if any,
// consistent with PE invoking zero or more PECallbacks methods per call.
func (l *LoopbackChannel) ProcessSignaling() error {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return nil
	}
	next := l.queue[0]
	l.queue = l.queue[1:]
	l.mu.Unlock()
	next(l.ctx.cb)
	return nil
}

func (l *LoopbackChannel) Accept() error                         { return nil }
func (l *LoopbackChannel) Answer() error                         { return nil }
func (l *LoopbackChannel) Dial(ani, dnis, category string) error { return nil }

// Disconnect records the requested cause and nothing else: OnCallEnd
// arrives later, on its own schedule, via an explicit InjectEnd the way a
// real PE's own async notification would — callers that model CANCEL's
// one-shot, never-acked disconnect simply never call InjectEnd.
func (l *LoopbackChannel) Disconnect(cause PECause) error {
	l.mu.Lock()
	l.lastDisconnectCause = cause
	l.mu.Unlock()
	return nil
}

// LastDisconnectCause reports the cause passed to the most recent
// Disconnect call, for tests asserting on what the FSM requested.
func (l *LoopbackChannel) LastDisconnectCause() PECause {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastDisconnectCause
}

func (l *LoopbackChannel) DisconnectAck(cause PECause) error { return nil }
func (l *LoopbackChannel) EnableRead(enabled bool) error     { return nil }
func (l *LoopbackChannel) SetBlocked(blocked bool) error {
	l.mu.Lock()
	l.blocked = blocked
	l.mu.Unlock()
	return nil
}
func (l *LoopbackChannel) Close() error { return nil }

// InjectInit simulates an inbound PE telling the translator a new call is
// starting on this timeslot.
func (l *LoopbackChannel) InjectInit() {
	l.enqueue(func(cb PECallbacks) { cb.OnCallInit(l.ts) })
}

func (l *LoopbackChannel) InjectOffered(ani, dnis, category string) {
	l.enqueue(func(cb PECallbacks) { cb.OnCallOffered(l.ts, ani, dnis, category) })
}

func (l *LoopbackChannel) InjectANIDigit(d byte) {
	l.enqueue(func(cb PECallbacks) { cb.OnANIDigit(l.ts, d) })
}

func (l *LoopbackChannel) InjectDNISDigit(d byte) {
	l.enqueue(func(cb PECallbacks) { cb.OnDNISDigit(l.ts, d) })
}

func (l *LoopbackChannel) InjectAccepted(dir Direction) {
	l.enqueue(func(cb PECallbacks) { cb.OnCallAccepted(l.ts, dir) })
}

func (l *LoopbackChannel) InjectAnswered() {
	l.enqueue(func(cb PECallbacks) { cb.OnCallAnswered(l.ts) })
}

func (l *LoopbackChannel) InjectDisconnect(cause PECause) {
	l.enqueue(func(cb PECallbacks) { cb.OnCallDisconnect(l.ts, cause) })
}

func (l *LoopbackChannel) InjectEnd() {
	l.enqueue(func(cb PECallbacks) { cb.OnCallEnd(l.ts) })
}

func (l *LoopbackChannel) InjectProtocolError(reason string) {
	l.enqueue(func(cb PECallbacks) { cb.OnProtocolError(l.ts, reason) })
}

func (l *LoopbackChannel) InjectLineBlocked() {
	l.enqueue(func(cb PECallbacks) { cb.OnLineBlocked(l.ts) })
}

func (l *LoopbackChannel) InjectLineIdle() {
	l.enqueue(func(cb PECallbacks) { cb.OnLineIdle(l.ts) })
}

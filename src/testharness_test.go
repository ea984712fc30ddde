package r2span

import "sync"

// fakeTAL is an in-memory TALChannel for tests: no real I/O, just enough
// bookkeeping for the FSM entry actions and the Span Monitor to exercise.
type fakeTAL struct {
	id   ChannelID
	span string
	mu   sync.Mutex
	data CallerData

	opened bool
	closed bool
}

func newFakeTAL(id ChannelID, span string) *fakeTAL {
	return &fakeTAL{id: id, span: span, data: CallerData{maxANI: 10, maxDNIS: 4, Interval: 1}}
}

func (f *fakeTAL) ID() ChannelID           { return f.id }
func (f *fakeTAL) SpanName() string        { return f.span }
func (f *fakeTAL) Mutex() *sync.Mutex      { return &f.mu }
func (f *fakeTAL) CallerData() *CallerData { return &f.data }
func (f *fakeTAL) Open() error             { f.opened = true; return nil }
func (f *fakeTAL) Close() error            { f.closed = true; return nil }
func (f *fakeTAL) FD() int                 { return -1 }
func (f *fakeTAL) SetCAS(bits uint8) error { return nil }
func (f *fakeTAL) GetCAS() (uint8, error)  { return 0, nil }
func (f *fakeTAL) FlushTX() error          { return nil }
func (f *fakeTAL) Write(buf []byte) (int, error) {
	return len(buf), nil
}
func (f *fakeTAL) Read(buf []byte) (int, error) { return 0, nil }
func (f *fakeTAL) Wait(flags WaitFlags, block bool) (WaitFlags, error) {
	return 0, nil
}
func (f *fakeTAL) GetOOBEvent() (OOBEvent, error) { return OOBEvent{Kind: OOBNone}, nil }

// recordingBus collects every upward event and, for START, answers with a
// pluggable decision so scenario tests can simulate accept/reject.
type recordingBus struct {
	mu          sync.Mutex
	events      []UpwardEvent
	acceptStart bool
}

func (b *recordingBus) Emit(e UpwardEvent) *StartDecision {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if e.Kind == EventStart {
		return &StartDecision{Accept: b.acceptStart}
	}
	return nil
}

func (b *recordingBus) kinds() []UpwardEventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]UpwardEventKind, len(b.events))
	for i, e := range b.events {
		out[i] = e.Kind
	}
	return out
}

// testSpan bundles a configured Span with direct access to its per-channel
// fake TAL and loopback PE channel, for driving scenarios step by step
// with RunOnce instead of the polling Run loop.
type testSpan struct {
	span *Span
	bus  *recordingBus
	tals map[ChannelID]*fakeTAL
	pe   map[ChannelID]*LoopbackChannel
}

// newTestSpan configures a span with n channels (ids 1..n) over LoopbackPE
// and in-memory TAL channels, mirroring factory.Configure's wiring.
func newTestSpan(n int, acceptStart bool) *testSpan {
	bus := &recordingBus{acceptStart: acceptStart}
	ts := &testSpan{bus: bus, tals: map[ChannelID]*fakeTAL{}, pe: map[ChannelID]*LoopbackChannel{}}

	cfg := DefaultSpanConfig()
	cfg.MaxANI = 10
	cfg.MaxDNIS = 4
	for i := 1; i <= n; i++ {
		cfg.Channels = append(cfg.Channels, ChannelID(i))
	}

	tals := func(id ChannelID) (TALChannel, error) {
		t := newFakeTAL(id, "test")
		ts.tals[id] = t
		return t, nil
	}

	pe := NewLoopbackPE("ITU")
	span, err := Configure("test", cfg, pe, tals, bus, NopLogger())
	if err != nil {
		panic(err) // test setup; a failure here is a harness bug, not a test case
	}
	ts.span = span
	for id, sc := range span.channels {
		ts.pe[id] = sc.rec.pe.(*LoopbackChannel)
	}
	return ts
}

func (ts *testSpan) state(id ChannelID) CallState {
	return ts.tals[id].data.State
}

// step runs RunOnce a fixed eight times, enough for the span to settle
// after the injected events the tests queue between steps.
func (ts *testSpan) step() {
	for i := 0; i < 8; i++ {
		ts.span.RunOnce()
	}
}

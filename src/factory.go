package r2span

import "fmt"

// TALProvider resolves a timeslot to its borrowed TAL channel: TAL
// channels are never owned by the span, only bound to.
type TALProvider func(ChannelID) (TALChannel, error)

// Configure validates cfg, creates the PE context, opens one PE channel
// per timeslot bound to its TAL channel via the PE adapter, and
// allocates a call record per channel. Any failure tears down every
// partial allocation.
func Configure(name string, cfg SpanConfig, pe PE, tals TALProvider, bus TALBus, log Logger) (*Span, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NopLogger()
	}
	span := &Span{
		Name:     name,
		cfg:      cfg,
		bus:      bus,
		log:      log,
		channels: make(map[ChannelID]*spanChannel, len(cfg.Channels)),
	}
	tr := newTranslator(span)

	peCtx, err := pe.NewContext(cfg.peContextConfig(), tr)
	if err != nil {
		return nil, fmt.Errorf("r2span: pe context: %w", err)
	}
	span.pe = peCtx

	for _, id := range cfg.Channels {
		if err := span.openChannel(id, tals, cfg); err != nil {
			span.teardown()
			return nil, err
		}
	}
	span.poller = newPoller()
	return span, nil
}

func (s *Span) openChannel(id ChannelID, tals TALProvider, cfg SpanConfig) error {
	tal, err := tals(id)
	if err != nil {
		return fmt.Errorf("r2span: tal channel %d: %w", id, err)
	}
	cd := tal.CallerData()
	cd.State = StateDown
	cd.StateChangeFlag = false

	chLog := s.log.With("chan", int(id))
	adapter := newPEAdapter(tal,
		func() *diagDump { return s.channels[id].rec.dump },
		func() { s.channels[id].rec.txDrops++ },
		chLog)
	peCh, err := s.pe.OpenChannel(id, adapter)
	if err != nil {
		return fmt.Errorf("r2span: pe channel %d: %w", id, err)
	}

	rec := NewCallRecord(id, peCh, s.bus, func(e UpwardEvent) { s.queueUpward(e) }, chLog)
	rec.cachedState = StateDown
	rec.doubleAnswer = cfg.DoubleAnswer
	rec.forcedRelease = cfg.ForcedRelease

	s.channels[id] = &spanChannel{tal: tal, rec: rec}
	s.order = append(s.order, id)
	return nil
}

// queueUpward appends to the span's outbox for delivery in the monitor's
// step; safe to call only from within a channel's locked advance (the
// monitor goroutine is the sole reader/writer).
func (s *Span) queueUpward(e UpwardEvent) {
	s.outbox = append(s.outbox, e)
}

// teardown releases every allocation Configure made, the PE channels
// first and the PE context last, on any failure partway through
// Configure.
func (s *Span) teardown() {
	for _, id := range s.order {
		sc := s.channels[id]
		if sc.rec.pe != nil {
			_ = sc.rec.pe.Close()
		}
	}
	if s.pe != nil {
		_ = s.pe.Close()
	}
	s.channels = nil
	s.order = nil
}

// Destroy releases a fully configured span's resources.
func (s *Span) Destroy() {
	s.running.Store(false)
	s.teardown()
}

package r2span

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/term"
)

// TALSerial is a reference TALChannel backed by a real or pseudo TTY,
// built on github.com/pkg/term. It treats the line as a timeslot's
// combined CAS/audio pipe: CAS bits ride a one-byte control frame, audio
// rides everything else. Exercised by tests and the bench-test build of
// cmd/r2span; not meant to replace a real TAL/E1-framer binding.
type TALSerial struct {
	id       ChannelID
	spanName string

	mu   sync.Mutex
	data CallerData

	path string
	baud int
	port *term.Term

	oobCh   chan OOBEvent
	closeCh chan struct{}

	txCAS, rxCAS uint8
}

// NewTALSerial wraps path (a device node or a pty slave name) as channel
// id on span spanName; the port itself is opened at baud by Open.
func NewTALSerial(id ChannelID, spanName, path string, baud int) (*TALSerial, error) {
	t := &TALSerial{
		id:       id,
		spanName: spanName,
		path:     path,
		baud:     baud,
		oobCh:    make(chan OOBEvent, 16),
		closeCh:  make(chan struct{}),
	}
	t.data = CallerData{maxANI: 32, maxDNIS: 32}
	return t, nil
}

func (t *TALSerial) ID() ChannelID    { return t.id }
func (t *TALSerial) SpanName() string { return t.spanName }
func (t *TALSerial) Mutex() *sync.Mutex {
	return &t.mu
}
func (t *TALSerial) CallerData() *CallerData { return &t.data }

func (t *TALSerial) Open() error {
	if t.port != nil {
		return nil
	}
	p, err := term.Open(t.path, term.RawMode)
	if err != nil {
		return fmt.Errorf("r2span: open serial %s: %w", t.path, err)
	}
	if err := p.SetSpeed(t.baud); err != nil {
		_ = p.Close()
		return fmt.Errorf("r2span: set speed on %s: %w", t.path, err)
	}
	t.port = p
	return nil
}

func (t *TALSerial) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// FD returns -1: github.com/pkg/term doesn't expose the raw descriptor
// portably, so the poller treats TALSerial as always ready rather than
// multiplexing it.
func (t *TALSerial) FD() int { return -1 }

func (t *TALSerial) SetCAS(bits uint8) error {
	t.txCAS = bits & 0x0f
	if t.port == nil {
		return nil
	}
	_, err := t.port.Write([]byte{0x80 | t.txCAS})
	return err
}

func (t *TALSerial) GetCAS() (uint8, error) {
	return t.rxCAS, nil
}

func (t *TALSerial) FlushTX() error {
	if t.port == nil {
		return nil
	}
	return t.port.Flush()
}

func (t *TALSerial) Write(buf []byte) (int, error) {
	if t.port == nil {
		return 0, io.ErrClosedPipe
	}
	return t.port.Write(buf)
}

func (t *TALSerial) Read(buf []byte) (int, error) {
	if t.port == nil {
		return 0, io.ErrClosedPipe
	}
	_ = t.port.SetReadTimeout(50 * time.Millisecond)
	n, err := t.port.Read(buf)
	for i := 0; i < n; i++ {
		if buf[i]&0x80 != 0 {
			prev := t.rxCAS
			t.rxCAS = buf[i] & 0x0f
			if prev != t.rxCAS {
				select {
				case t.oobCh <- OOBEvent{Kind: OOBCASChange, CAS: t.rxCAS}:
				default:
				}
			}
		}
	}
	return n, err
}

func (t *TALSerial) Wait(flags WaitFlags, block bool) (WaitFlags, error) {
	if flags&WaitOOB != 0 && len(t.oobCh) > 0 {
		return WaitOOB, nil
	}
	if !block {
		return 0, nil
	}
	select {
	case <-t.oobCh:
		return WaitOOB, nil
	case <-time.After(pollCeiling):
		return 0, nil
	case <-t.closeCh:
		return 0, nil
	}
}

func (t *TALSerial) GetOOBEvent() (OOBEvent, error) {
	select {
	case ev := <-t.oobCh:
		return ev, nil
	default:
		return OOBEvent{Kind: OOBNone}, nil
	}
}

// CAS returns the last known Tx/Rx CAS nibbles for the `status` admin
// command.
func (t *TALSerial) CAS() (tx, rx uint8) {
	return t.txCAS, t.rxCAS
}

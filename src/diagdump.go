package r2span

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

// diagDump is the rolling I/O dump: enabled on inbound init, disabled
// cleanly on offered, or flushed to two files (one per direction) on
// the first protocol error.
type diagDump struct {
	active   bool
	cap      int
	input    []byte
	output   []byte
	span     string
	channel  ChannelID
	logName  string
	logDir   string
	dirPttrn *strftime.Strftime
}

// startDiagDump begins capturing up to cfg.MFDumpSize bytes per
// direction for this call.
func startDiagDump(sc *spanChannel, cfg SpanConfig, logName string) {
	var pttrn *strftime.Strftime
	if cfg.DumpDirPattern != "" {
		p, err := strftime.New(cfg.DumpDirPattern)
		if err == nil {
			pttrn = p
		}
	}
	sc.rec.dump = &diagDump{
		active:   true,
		cap:      cfg.MFDumpSize,
		span:     sc.tal.SpanName(),
		channel:  sc.tal.ID(),
		logName:  logName,
		logDir:   cfg.LogDir,
		dirPttrn: pttrn,
	}
}

// stopDiagDump ends the dump without writing anything: only the
// protocol-error path flushes the captured buffers to disk.
func stopDiagDump(sc *spanChannel) {
	if sc.rec.dump != nil {
		sc.rec.dump.active = false
	}
}

// captureInput/captureOutput are called by the PE adapter's read/write
// hooks while a dump is active (src/pe_adapter.go).
func (d *diagDump) captureInput(buf []byte) {
	if d == nil || !d.active {
		return
	}
	d.input = appendCapped(d.input, buf, d.cap)
}

func (d *diagDump) captureOutput(buf []byte) {
	if d == nil || !d.active {
		return
	}
	d.output = appendCapped(d.output, buf, d.cap)
}

func appendCapped(dst, src []byte, cap int) []byte {
	if cap <= 0 {
		return dst
	}
	room := cap - len(dst)
	if room <= 0 {
		return dst
	}
	if len(src) > room {
		src = src[:room]
	}
	return append(dst, src...)
}

// dumpDiagBuffers flushes both directions to
// {logname}.s{span}c{chan}.{input|output}.alaw under logdir, and is a
// no-op if no dump was ever started for this call.
func dumpDiagBuffers(sc *spanChannel) {
	d := sc.rec.dump
	if d == nil {
		sc.rec.dump = nil
		return
	}
	defer func() { sc.rec.dump = nil }()
	if len(d.input) == 0 && len(d.output) == 0 {
		return
	}
	dir := d.logDir
	if d.dirPttrn != nil {
		dir = filepath.Join(dir, d.dirPttrn.FormatString(time.Now()))
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	base := fmt.Sprintf("%s.s%sc%d", d.logName, d.span, d.channel)
	writeDumpFile(filepath.Join(dir, base+".input.alaw"), d.input)
	writeDumpFile(filepath.Join(dir, base+".output.alaw"), d.output)
}

func writeDumpFile(path string, data []byte) {
	if len(data) == 0 {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

package r2span

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestControlServer(t *testing.T, reg *Registry) (addr string, stop func()) {
	t.Helper()
	srv := NewControlServer(reg, NopLogger(), "r2span test-build")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.mu.Lock()
		srv.ln = ln
		srv.mu.Unlock()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.wg.Add(1)
			go srv.handle(conn)
		}
	}()

	return ln.Addr().String(), func() {
		close(srv.shutdown)
		ln.Close()
		srv.wg.Wait()
		<-done
	}
}

func sendCommand(t *testing.T, addr, line string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	scanner := bufio.NewScanner(conn)
	var lines []string
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			break
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}

func TestControlServer_StatusAndBlock(t *testing.T) {
	ts := newTestSpan(2, true)
	reg := NewRegistry()
	require.NoError(t, reg.Register(ts.span))

	addr, stop := startTestControlServer(t, reg)
	defer stop()

	reply := sendCommand(t, addr, "version")
	require.Equal(t, "r2span test-build\n+OK.", reply)

	reply = sendCommand(t, addr, "threads")
	require.Equal(t, "test\n+OK.", reply)

	reply = sendCommand(t, addr, "status test")
	require.True(t, strings.HasSuffix(reply, "\n+OK."))
	require.Contains(t, reply, "chan=1 state=DOWN")
	require.Contains(t, reply, "chan=2 state=DOWN")

	reply = sendCommand(t, addr, "block test 1")
	require.Equal(t, "+OK.", reply)

	reply = sendCommand(t, addr, "unblock test 1")
	require.Equal(t, "+OK.", reply)

	reply = sendCommand(t, addr, "block test 99")
	require.Contains(t, reply, "-ERR")

	reply = sendCommand(t, addr, "nonsense")
	require.Contains(t, reply, "-ERR unknown command nonsense")
}

func TestControlServer_VariantsAndLoopStats(t *testing.T) {
	ts := newTestSpan(1, true)
	reg := NewRegistry()
	require.NoError(t, reg.Register(ts.span))

	addr, stop := startTestControlServer(t, reg)
	defer stop()

	reply := sendCommand(t, addr, "variants test")
	require.Equal(t, "ITU\n+OK.", reply)

	ts.span.recordLoop(5)
	ts.span.recordLoop(15)
	reply = sendCommand(t, addr, "loopstats test")
	require.True(t, strings.HasPrefix(reply, "total=2\n") && strings.HasSuffix(reply, "\n+OK."))
}

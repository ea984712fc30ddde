package r2span

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// TestTALSerial_CASFrameRoundTrip opens TALSerial against the slave side
// of a real pseudo-terminal pair and moves one CAS frame each way: SetCAS
// to the master side, and a master-side CAS byte back through Read,
// checking the high-bit-set-means-CAS framing and the CAS() snapshot.
func TestTALSerial_CASFrameRoundTrip(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	defer master.Close()
	defer slave.Close()

	tal, err := NewTALSerial(1, "test", slave.Name(), 9600)
	require.NoError(t, err)
	require.NoError(t, tal.Open())
	defer tal.Close()

	require.NoError(t, tal.SetCAS(0x05))
	buf := make([]byte, 1)
	_, err = master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(0x80|0x05), buf[0])

	go func() {
		_, _ = master.Write([]byte{0x80 | 0x0a})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rxbuf := make([]byte, 4)
		n, rerr := tal.Read(rxbuf)
		if rerr == nil && n > 0 {
			tx, rx := tal.CAS()
			require.Equal(t, uint8(0x05), tx)
			require.Equal(t, uint8(0x0a), rx)
			return
		}
	}
	t.Fatal("timed out waiting for CAS byte to round-trip through the pty")
}

package r2span

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestProperty_AcceptedStartSequence: an accepted RING produces exactly
// [START, (PROCEED?), (PROGRESS_MEDIA?), UP, STOP] with UP before STOP,
// for any choice of whether Progress is called before Answer.
func TestProperty_AcceptedStartSequence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		withProgress := rapid.Bool().Draw(rt, "withProgress")
		ts := newTestSpan(1, true)

		ts.pe[1].InjectInit()
		ts.step()
		ts.pe[1].InjectOffered("5551234", "5556789", "national_subscriber")
		ts.step()

		if withProgress {
			require.NoError(rt, ts.span.Progress(1, true))
			ts.step()
		}
		require.NoError(rt, ts.span.Answer(1))
		ts.step()
		ts.pe[1].InjectAccepted(DirectionInbound)
		ts.step()

		// PE-initiated teardown: Terminating's entry action is the only
		// place STOP is queued, and only the listener driving HANGUP in
		// response to it reaches DOWN through that path.
		ts.pe[1].InjectDisconnect(PECauseNormalClearing)
		ts.step()
		require.NoError(rt, ts.span.Hangup(1, ts.tals[1].CallerData().HangupCause))
		ts.step()
		ts.pe[1].InjectEnd()
		ts.step()

		kinds := ts.bus.kinds()
		require.NotEmpty(rt, kinds)
		require.Equal(rt, EventStart, kinds[0])

		upIdx, stopIdx := -1, -1
		for i, k := range kinds {
			if k == EventUp && upIdx == -1 {
				upIdx = i
			}
			if k == EventStop && stopIdx == -1 {
				stopIdx = i
			}
		}
		require.NotEqual(rt, -1, upIdx, "UP must be emitted")
		require.NotEqual(rt, -1, stopIdx, "STOP must be emitted")
		require.Less(rt, upIdx, stopIdx, "UP must precede STOP")

		for _, k := range kinds {
			switch k {
			case EventStart, EventProceed, EventProgressMedia, EventUp, EventStop, EventCollectedDigit:
			default:
				rt.Fatalf("unexpected event kind in accepted sequence: %v", k)
			}
		}
	})
}

// TestProperty_DownVisitedLastNoDoubleEntry: every scenario this harness
// can drive ends in DOWN, and cachedState tracks the FSM's current state
// one-to-one (no entry handler re-fires for a state it already
// processed).
func TestProperty_DownVisitedLastNoDoubleEntry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		accept := rapid.Bool().Draw(rt, "accept")
		ts := newTestSpan(1, accept)

		ts.pe[1].InjectInit()
		ts.step()
		ts.pe[1].InjectOffered("5551234", "5556789", "national_subscriber")
		ts.step()

		rec := ts.span.channels[1].rec
		if accept {
			require.NoError(rt, ts.span.Answer(1))
			ts.step()
			ts.pe[1].InjectAccepted(DirectionInbound)
			ts.step()
			ts.pe[1].InjectDisconnect(PECauseNormalClearing)
			ts.step()
			require.NoError(rt, ts.span.Hangup(1, ts.tals[1].CallerData().HangupCause))
			ts.step()
			ts.pe[1].InjectEnd()
			ts.step()
		}

		require.Equal(rt, StateDown, ts.state(1))
		require.Equal(rt, rec.cachedState, ts.tals[1].data.State, "cachedState must converge with the live state at rest")
	})
}

// TestProperty_AnswerDeferredDuringAcceptBarrier: once RING is accepted
// and Answer has been requested, the barrier holds (Answer keeps
// returning ErrAcceptPending) until on_call_accepted fires, at which
// point it is satisfied without the caller retrying any request.
func TestProperty_AnswerDeferredDuringAcceptBarrier(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		retries := rapid.IntRange(0, 4).Draw(rt, "retries")
		ts := newTestSpan(1, true)
		ts.pe[1].InjectInit()
		ts.step()
		ts.pe[1].InjectOffered("5551234", "5556789", "national_subscriber")
		ts.step()

		require.NoError(rt, ts.span.Answer(1))
		ts.step()
		rec := ts.span.channels[1].rec
		require.True(rt, rec.acceptingPending(ts.tals[1].CallerData()))
		require.True(rt, rec.AnswerPending())

		for i := 0; i < retries; i++ {
			err := ts.span.Answer(1)
			require.ErrorIs(rt, err, ErrAcceptPending)
		}

		ts.pe[1].InjectAccepted(DirectionInbound)
		ts.step()
		require.False(rt, rec.acceptingPending(ts.tals[1].CallerData()))
		require.False(rt, rec.AnswerPending())
		require.Equal(rt, StateUp, ts.state(1))
	})
}

// TestProperty_BarrierReleasedOnDisconnectOrProtocolError: a disconnect
// or protocol error while the accept barrier is held always clears it.
func TestProperty_BarrierReleasedOnDisconnectOrProtocolError(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		viaProtocolError := rapid.Bool().Draw(rt, "viaProtocolError")
		ts := newTestSpan(1, true)
		ts.pe[1].InjectInit()
		ts.step()
		ts.pe[1].InjectOffered("5551234", "5556789", "national_subscriber")
		ts.step()
		require.NoError(rt, ts.span.Answer(1))
		ts.step()
		rec := ts.span.channels[1].rec
		require.True(rt, rec.acceptingPending(ts.tals[1].CallerData()))

		if viaProtocolError {
			ts.pe[1].InjectProtocolError("barrier release check")
		} else {
			ts.pe[1].InjectDisconnect(PECauseNormalClearing)
		}
		ts.step()

		require.False(rt, rec.acceptingPending(ts.tals[1].CallerData()))
	})
}

// TestProperty_HangupNeverRedisconnectsAfterDisconnectRcvd: once
// disconnect_rcvd is set, HANGUP only acknowledges and never re-sends a
// disconnect request.
func TestProperty_HangupNeverRedisconnectsAfterDisconnectRcvd(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ts := newTestSpan(1, true)
		ts.pe[1].InjectInit()
		ts.step()
		ts.pe[1].InjectOffered("5551234", "5556789", "national_subscriber")
		ts.step()
		require.NoError(rt, ts.span.Answer(1))
		ts.step()
		ts.pe[1].InjectAccepted(DirectionInbound)
		ts.step()

		ts.pe[1].InjectDisconnect(PECauseNormalClearing)
		ts.step()
		rec := ts.span.channels[1].rec
		require.True(rt, rec.disconnectRcvd)
		require.Equal(rt, StateTerminating, ts.state(1))

		require.NoError(rt, ts.span.Hangup(1, TALCauseNormalClearing))
		ts.step()
		require.Equal(rt, StateHangup, ts.state(1), "disconnect_rcvd means HANGUP only acks and waits for OnCallEnd")
	})
}

// TestProperty_DNISBufferIsBoundedPrefix: the DNIS buffer always ends up
// being a prefix of the injected digit stream no longer than max_dnis,
// and digits past either bound are never appended.
func TestProperty_DNISBufferIsBoundedPrefix(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxDNIS := rapid.IntRange(1, 8).Draw(rt, "maxDNIS")
		digits := rapid.SliceOfN(rapid.ByteRange('0', '9'), 0, 12).Draw(rt, "digits")

		ts := newTestSpan(1, true)
		ts.tals[1].data.maxDNIS = maxDNIS
		ts.pe[1].InjectInit()
		ts.step()

		for _, d := range digits {
			ts.pe[1].InjectDNISDigit(d)
			ts.step()
		}

		got := ts.tals[1].data.DNIS
		want := digits
		if len(want) > maxDNIS {
			want = want[:maxDNIS]
		}
		require.Equal(rt, string(want), string(got))
	})
}

// TestProperty_LoopBucketsSumToTotal: every recorded loop sample lands
// in exactly one bucket, so the bucket counts always sum to the total.
func TestProperty_LoopBucketsSumToTotal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		samples := rapid.SliceOfN(rapid.Int64Range(0, 250), 0, 40).Draw(rt, "samples")
		ts := newTestSpan(1, true)
		for _, ms := range samples {
			ts.span.recordLoop(ms)
		}
		stats := ts.span.LoopStats()
		var sum uint64
		for _, b := range stats.Buckets {
			sum += b
		}
		require.Equal(rt, stats.TotalLoops, sum)
		require.Equal(rt, uint64(len(samples)), stats.TotalLoops)
	})
}

package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udp-meter/internal/packet"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func frag(seq uint32, offset uint16) packet.Header {
	return packet.Header{Sequence: seq, FragmentOffset: offset, PayloadLength: 1400, SourcePort: 5202, SenderTimestamp: 100 + float64(seq)}
}

func TestTracker_FragmentedPacket(t *testing.T) {
	tr := New()

	ev := tr.Observe(frag(1, 2), base)
	assert.Equal(t, FirstSeen, ev.Kind)
	assert.True(t, ev.New)
	assert.Equal(t, 101.0, ev.Pending.SenderTimestamp)

	ev = tr.Observe(frag(1, 1), base.Add(time.Millisecond))
	assert.Equal(t, AlreadyTracked, ev.Kind)
	assert.False(t, ev.New)

	ev = tr.Observe(frag(1, 0), base.Add(5*time.Millisecond))
	assert.Equal(t, Completed, ev.Kind)
	assert.False(t, ev.New)
	assert.Equal(t, 5*time.Millisecond, ev.Delay)
	assert.Equal(t, base, ev.Pending.FirstSeen)
	assert.Equal(t, 101.0, ev.Pending.SenderTimestamp)

	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 1, tr.Completed())
	assert.Equal(t, 0, tr.PendingCount())
}

func TestTracker_OutOfOrderFragments(t *testing.T) {
	tr := New()

	// the middle fragment arrives first; delay is measured from it
	assert.Equal(t, FirstSeen, tr.Observe(frag(7, 1), base).Kind)
	assert.Equal(t, AlreadyTracked, tr.Observe(frag(7, 2), base.Add(time.Millisecond)).Kind)
	ev := tr.Observe(frag(7, 0), base.Add(3*time.Millisecond))
	require.Equal(t, Completed, ev.Kind)
	assert.Equal(t, 3*time.Millisecond, ev.Delay)
}

func TestTracker_LoneTerminatingFragment(t *testing.T) {
	tr := New()

	ev := tr.Observe(frag(3, 0), base)
	assert.Equal(t, Completed, ev.Kind)
	assert.True(t, ev.New)
	assert.Equal(t, time.Duration(0), ev.Delay)
	assert.Equal(t, 1, tr.Completed())
}

func TestTracker_DuplicateFinalizationIsIgnored(t *testing.T) {
	tr := New()

	tr.Observe(frag(5, 1), base)
	first := tr.Observe(frag(5, 0), base.Add(2*time.Millisecond))
	require.Equal(t, Completed, first.Kind)

	dup := tr.Observe(frag(5, 0), base.Add(50*time.Millisecond))
	assert.Equal(t, Duplicate, dup.Kind)
	assert.Equal(t, 2*time.Millisecond, dup.Delay)

	// late intermediate fragment after finalization
	assert.Equal(t, AlreadyTracked, tr.Observe(frag(5, 1), base.Add(60*time.Millisecond)).Kind)

	samples := tr.Finalized()
	require.Len(t, samples, 1)
	assert.Equal(t, 2*time.Millisecond, samples[0].Delay)
	// the duplicate does not move the completion time
	assert.True(t, samples[0].CompletedAt.Equal(base.Add(2*time.Millisecond)))
	assert.Equal(t, 1, tr.Completed())
}

func TestTracker_IncompletePacketsStayPending(t *testing.T) {
	tr := New()

	tr.Observe(frag(1, 1), base)
	tr.Observe(frag(2, 1), base)
	tr.Observe(frag(2, 0), base.Add(time.Millisecond))

	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 1, tr.PendingCount())
	samples := tr.Finalized()
	require.Len(t, samples, 1)
	assert.Equal(t, uint32(2), samples[0].Sequence)
}

func TestTracker_FinalizedSortedBySequence(t *testing.T) {
	tr := New()

	for _, seq := range []uint32{9, 2, 40, 1, 17} {
		tr.Observe(frag(seq, 1), base)
		tr.Observe(frag(seq, 0), base.Add(time.Duration(seq)*time.Millisecond))
	}

	samples := tr.Finalized()
	require.Len(t, samples, 5)
	var seqs []uint32
	for _, s := range samples {
		seqs = append(seqs, s.Sequence)
		assert.Equal(t, time.Duration(s.Sequence)*time.Millisecond, s.Delay)
	}
	assert.Equal(t, []uint32{1, 2, 9, 17, 40}, seqs)

	lo, hi, ok := tr.SequenceRange()
	assert.True(t, ok)
	assert.Equal(t, uint32(1), lo)
	assert.Equal(t, uint32(40), hi)
}

func TestTracker_EmptyRange(t *testing.T) {
	_, _, ok := New().SequenceRange()
	assert.False(t, ok)
	assert.Empty(t, New().Finalized())
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}

func TestTracker_SequenceRange(t *testing.T) {
	cases := []struct {
		name   string
		seqs   []uint32
		lo, hi uint32
		span   uint32
	}{
		{"single", []uint32{7}, 7, 7, 1},
		{"contiguous", []uint32{3, 1, 2, 4}, 1, 4, 4},
		{"with holes", []uint32{10, 14, 20}, 10, 20, 11},
		{"wraps past max", []uint32{0xFFFFFFFE, 0xFFFFFFFF, 0, 1}, 0xFFFFFFFE, 1, 4},
		{"wraps with holes", []uint32{0xFFFFFFF0, 0xFFFFFFFA, 5}, 0xFFFFFFF0, 5, 22},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := New()
			for _, seq := range tc.seqs {
				tr.Observe(frag(seq, 0), base)
			}

			lo, hi, ok := tr.SequenceRange()
			require.True(t, ok)
			assert.Equal(t, tc.lo, lo)
			assert.Equal(t, tc.hi, hi)
			assert.Equal(t, tc.span, hi-lo+1)
		})
	}
}

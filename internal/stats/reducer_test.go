package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udp-meter/internal/tracker"
)

func samplesMs(delays ...float64) []tracker.Sample {
	out := make([]tracker.Sample, len(delays))
	for i, d := range delays {
		out[i] = tracker.Sample{Sequence: uint32(i + 1), Delay: time.Duration(d * float64(time.Millisecond))}
	}
	return out
}

func TestThroughput_OneMbps(t *testing.T) {
	assert.Equal(t, 1.0, Throughput(125000, time.Second))
	assert.InDelta(t, 0.5, Throughput(125000, 2*time.Second), 1e-12)
	assert.True(t, math.IsNaN(Throughput(100, 0)))
}

func TestReduce_JitterExcludesLastSample(t *testing.T) {
	snap := Snapshot{
		TotalBytes: 125000,
		Tracked:    true,
		Sequences:  4,
		HasRange:   true,
		MinSeq:     1,
		MaxSeq:     4,
		Samples:    samplesMs(10, 12, 11, 15),
	}

	res := Reduce(snap, time.Second, ReduceOptions{})

	assert.Equal(t, 1.0, res.ThroughputMbps)
	assert.Equal(t, 3, res.DelaySamples)
	assert.InDelta(t, 11.0, res.MeanDelayMs, 1e-9)
	assert.InDelta(t, 1.5, res.JitterMs, 1e-9)
	assert.True(t, math.IsNaN(res.ExcessJitterMs))
	assert.InDelta(t, 0.0, res.LossRate, 1e-12)
}

func TestReduce_InsufficientSamples(t *testing.T) {
	cases := []struct {
		name    string
		samples []tracker.Sample
	}{
		{"none", nil},
		{"one", samplesMs(4)},
		// the last sample is dropped, leaving one usable value
		{"two", samplesMs(4, 8)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reduce(Snapshot{Tracked: true, Samples: tc.samples}, time.Second, ReduceOptions{})
			assert.True(t, math.IsNaN(res.JitterMs), "jitter must be undefined, got %v", res.JitterMs)
			assert.False(t, res.JitterDefined())
		})
	}
}

func TestReduce_ExcessJitter(t *testing.T) {
	snap := Snapshot{Tracked: true, Samples: samplesMs(10, 14, 10, 14, 99)}

	res := Reduce(snap, time.Second, ReduceOptions{SendInterval: time.Millisecond})

	assert.InDelta(t, 4.0, res.JitterMs, 1e-9)
	assert.InDelta(t, 3.0, res.ExcessJitterMs, 1e-9)
}

func TestReduce_LossRate(t *testing.T) {
	snap := Snapshot{
		Tracked:  true,
		HasRange: true,
		MinSeq:   10,
		MaxSeq:   19,
		Samples:  samplesMs(1, 1, 1, 1, 1, 1, 1, 1),
	}

	res := Reduce(snap, time.Second, ReduceOptions{})
	assert.InDelta(t, 0.2, res.LossRate, 1e-12)
}

func TestReduce_DelayNotTracked(t *testing.T) {
	res := Reduce(Snapshot{TotalBytes: 250000}, 2*time.Second, ReduceOptions{SendInterval: time.Millisecond})

	assert.Equal(t, 1.0, res.ThroughputMbps)
	assert.False(t, res.DelayTracked)
	assert.True(t, math.IsNaN(res.MeanDelayMs))
	assert.True(t, math.IsNaN(res.JitterMs))
	assert.True(t, math.IsNaN(res.LossRate))
}

func TestJitter_MeanAbsoluteDifference(t *testing.T) {
	assert.InDelta(t, 2.0, Jitter([]float64{1, 3, 1, 3}), 1e-12)
	assert.InDelta(t, 0.0, Jitter([]float64{5, 5, 5}), 1e-12)
	assert.True(t, math.IsNaN(Jitter([]float64{1})))
	assert.True(t, math.IsNaN(Mean(nil)))
}

func TestDelaySeries_OrderedMilliseconds(t *testing.T) {
	series := DelaySeries(Snapshot{Samples: samplesMs(0.5, 1.25, 7)})
	require.Len(t, series, 2)
	assert.InDelta(t, 0.5, series[0], 1e-9)
	assert.InDelta(t, 1.25, series[1], 1e-9)
}

func completionsMs(offsets ...int) []time.Time {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]time.Time, len(offsets))
	for i, ms := range offsets {
		out[i] = base.Add(time.Duration(ms) * time.Millisecond)
	}
	return out
}

func TestStutter(t *testing.T) {
	cases := []struct {
		name    string
		offsets []int
		want    float64
	}{
		{"no completions", nil, 0},
		{"single completion", []int{0}, 0},
		{"steady frame pace", []int{0, 16, 32, 48}, 0},
		{"gap of exactly two frames", []int{0, 32}, 0},
		{"one stall", []int{0, 50, 66}, 0.034 / 0.066},
		{"two stalls", []int{0, 40, 100}, 0.068 / 0.100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Stutter(completionsMs(tc.offsets...)), 1e-9)
		})
	}
}

func TestReduce_StutterUsesArrivalOrder(t *testing.T) {
	times := completionsMs(0, 50, 66)
	snap := Snapshot{
		Tracked: true,
		Samples: []tracker.Sample{
			{Sequence: 1, CompletedAt: times[1]},
			{Sequence: 2, CompletedAt: times[0]},
			{Sequence: 3, CompletedAt: times[2]},
		},
	}

	res := Reduce(snap, time.Second, ReduceOptions{})
	assert.InDelta(t, 0.034/0.066, res.StutterRate, 1e-9)
	assert.Contains(t, FormatReport(res), "Stuttering rate: 0.51515\n")
}

func TestReduce_StutterUntracked(t *testing.T) {
	res := Reduce(Snapshot{TotalBytes: 10}, time.Second, ReduceOptions{})
	assert.True(t, math.IsNaN(res.StutterRate))
	assert.NotContains(t, FormatReport(res), "Stuttering")
}

func TestReduce_LossRateAcrossSequenceWrap(t *testing.T) {
	snap := Snapshot{
		Tracked:  true,
		HasRange: true,
		MinSeq:   0xFFFFFFFE,
		MaxSeq:   1,
		Samples:  samplesMs(1, 2, 3),
	}

	res := Reduce(snap, time.Second, ReduceOptions{})
	assert.InDelta(t, 0.25, res.LossRate, 1e-9)
}

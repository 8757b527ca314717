package stats

import (
	"math"
	"sort"
	"time"
)

// stutterFrameInterval is one 60 fps frame.
const stutterFrameInterval = 16 * time.Millisecond

// ReduceOptions tunes the statistics reduction.
type ReduceOptions struct {
	// SendInterval is the sender's configured packet spacing. When set,
	// ExcessJitterMs reports jitter above it.
	SendInterval time.Duration
}

// Result is the final measurement of a session. Undefined values are NaN.
type Result struct {
	Duration       time.Duration
	TotalBytes     uint64
	Datagrams      uint64
	Malformed      uint64
	ThroughputMbps float64

	DelayTracked   bool
	Sequences      int
	Completed      int
	Duplicates     uint64
	DelaySamples   int
	MeanDelayMs    float64
	JitterMs       float64
	ExcessJitterMs float64
	LossRate       float64
	StutterRate    float64

	PongsSent   uint64
	PongsFailed uint64
}

// ReceivedMB returns the byte total in mebibytes.
func (r *Result) ReceivedMB() float64 {
	return float64(r.TotalBytes) / 1024 / 1024
}

// JitterDefined reports whether enough delay samples were collected.
func (r *Result) JitterDefined() bool {
	return !math.IsNaN(r.JitterMs)
}

// Reduce turns a session snapshot into throughput, delay and jitter.
func Reduce(snap Snapshot, duration time.Duration, opts ReduceOptions) *Result {
	res := &Result{
		Duration:       duration,
		TotalBytes:     snap.TotalBytes,
		Datagrams:      snap.Datagrams,
		Malformed:      snap.Malformed,
		ThroughputMbps: Throughput(snap.TotalBytes, duration),
		DelayTracked:   snap.Tracked,
		Sequences:      snap.Sequences,
		Completed:      len(snap.Samples),
		Duplicates:     snap.Duplicates,
		MeanDelayMs:    math.NaN(),
		JitterMs:       math.NaN(),
		ExcessJitterMs: math.NaN(),
		LossRate:       math.NaN(),
		StutterRate:    math.NaN(),
		PongsSent:      snap.PongsSent,
		PongsFailed:    snap.PongsFailed,
	}
	if !snap.Tracked {
		return res
	}

	series := DelaySeries(snap)
	res.DelaySamples = len(series)
	res.MeanDelayMs = Mean(series)
	res.JitterMs = Jitter(series)
	if opts.SendInterval > 0 && res.JitterDefined() {
		res.ExcessJitterMs = res.JitterMs - float64(opts.SendInterval)/float64(time.Millisecond)
	}

	res.StutterRate = Stutter(CompletionTimes(snap))

	if snap.HasRange {
		// uint32 subtraction keeps the span right when the sequence wrapped
		expected := float64(snap.MaxSeq-snap.MinSeq) + 1
		res.LossRate = (expected - float64(res.Completed)) / expected
	}
	return res
}

// Throughput returns bytes*8/1e6/seconds. A non-positive duration yields NaN.
func Throughput(totalBytes uint64, duration time.Duration) float64 {
	if duration <= 0 {
		return math.NaN()
	}
	return float64(totalBytes) * 8 / 1e6 / duration.Seconds()
}

// DelaySeries returns the finalized delays in milliseconds, ordered by
// sequence, without the last sample. The last finalized packet may straddle
// the end of the window and is not used.
func DelaySeries(snap Snapshot) []float64 {
	if len(snap.Samples) < 2 {
		return nil
	}
	series := make([]float64, 0, len(snap.Samples)-1)
	for _, s := range snap.Samples[:len(snap.Samples)-1] {
		series = append(series, float64(s.Delay)/float64(time.Millisecond))
	}
	return series
}

// Mean returns the arithmetic mean, or NaN for an empty series.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// Jitter returns the mean absolute difference between consecutive values,
// or NaN when fewer than two values are given.
func Jitter(series []float64) float64 {
	if len(series) < 2 {
		return math.NaN()
	}
	var sum float64
	for i := 1; i < len(series); i++ {
		sum += math.Abs(series[i] - series[i-1])
	}
	return sum / float64(len(series)-1)
}

// CompletionTimes returns the local completion time of every finalized
// packet in arrival order.
func CompletionTimes(snap Snapshot) []time.Time {
	times := make([]time.Time, 0, len(snap.Samples))
	for _, s := range snap.Samples {
		times = append(times, s.CompletedAt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// Stutter returns the share of the completion span spent in stalls. For
// each pair of consecutive completions the gap minus one frame interval is
// a stall when it exceeds one frame interval. Fewer than two completions,
// or no stall at all, yield 0.
func Stutter(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	var stalled time.Duration
	for i := 1; i < len(times); i++ {
		if d := times[i].Sub(times[i-1]) - stutterFrameInterval; d > stutterFrameInterval {
			stalled += d
		}
	}
	if stalled == 0 {
		return 0
	}
	return stalled.Seconds() / times[len(times)-1].Sub(times[0]).Seconds()
}

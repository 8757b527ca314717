package stats

import (
	"time"

	"go.uber.org/atomic"

	"udp-meter/internal/packet"
	"udp-meter/internal/tracker"
)

// Observation is the outcome of recording one datagram.
type Observation struct {
	Header packet.Header
	Event  tracker.Event
	// Tracked is false when delay tracking is disabled.
	Tracked bool
}

// Collector holds the state of one measurement session: the received byte
// counter and the arrival table. Record must only be called by the receive
// loop. The counters may be read at any time; the arrival table only through
// Snapshot once the receive loop has returned.
type Collector struct {
	StartTime time.Time
	EndTime   time.Time

	trackDelay bool
	tracker    *tracker.Tracker

	bytes       atomic.Uint64
	datagrams   atomic.Uint64
	malformed   atomic.Uint64
	completed   atomic.Uint64
	duplicates  atomic.Uint64
	pongsSent   atomic.Uint64
	pongsFailed atomic.Uint64
}

// NewCollector creates a collector. When trackDelay is false only bytes and
// datagrams are counted.
func NewCollector(trackDelay bool) *Collector {
	return &Collector{
		trackDelay: trackDelay,
		tracker:    tracker.New(),
	}
}

// TrackDelay reports whether arrivals are tracked per sequence.
func (c *Collector) TrackDelay() bool {
	return c.trackDelay
}

// Record accounts one received datagram. Every datagram counts toward the
// byte total, including malformed ones and fragments of finalized sequences.
// A malformed datagram yields an error wrapping packet.ErrMalformedHeader.
func (c *Collector) Record(data []byte, now time.Time) (Observation, error) {
	c.bytes.Add(uint64(len(data)))
	c.datagrams.Inc()

	h, err := packet.Decode(data)
	if err != nil {
		c.malformed.Inc()
		return Observation{}, err
	}

	if !c.trackDelay {
		return Observation{Header: h}, nil
	}

	ev := c.tracker.Observe(h, now)
	switch ev.Kind {
	case tracker.Completed:
		c.completed.Inc()
	case tracker.Duplicate:
		c.duplicates.Inc()
	}
	return Observation{Header: h, Event: ev, Tracked: true}, nil
}

// RecordPong counts the outcome of a pong transmission.
func (c *Collector) RecordPong(err error) {
	if err != nil {
		c.pongsFailed.Inc()
		return
	}
	c.pongsSent.Inc()
}

// MarkStart sets the origin of the measurement window.
func (c *Collector) MarkStart(t time.Time) {
	c.StartTime = t
}

// Finish marks the end of the measurement window.
func (c *Collector) Finish(t time.Time) {
	c.EndTime = t
}

// TotalBytes returns the number of bytes received so far.
func (c *Collector) TotalBytes() uint64 {
	return c.bytes.Load()
}

// Datagrams returns the number of datagrams received so far.
func (c *Collector) Datagrams() uint64 {
	return c.datagrams.Load()
}

// CompletedCount returns the number of finalized sequences so far.
func (c *Collector) CompletedCount() uint64 {
	return c.completed.Load()
}

// Snapshot is a read-only copy of the session state taken after the
// receive loop stopped.
type Snapshot struct {
	StartTime time.Time
	EndTime   time.Time

	TotalBytes  uint64
	Datagrams   uint64
	Malformed   uint64
	Duplicates  uint64
	PongsSent   uint64
	PongsFailed uint64

	Tracked   bool
	Sequences int
	Pending   int
	MinSeq    uint32
	MaxSeq    uint32
	HasRange  bool
	Samples   []tracker.Sample
}

// Snapshot copies the session state. The caller must guarantee that the
// receive loop has returned.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		TotalBytes:  c.bytes.Load(),
		Datagrams:   c.datagrams.Load(),
		Malformed:   c.malformed.Load(),
		Duplicates:  c.duplicates.Load(),
		PongsSent:   c.pongsSent.Load(),
		PongsFailed: c.pongsFailed.Load(),
		Tracked:     c.trackDelay,
		Sequences:   c.tracker.Len(),
		Pending:     c.tracker.PendingCount(),
		Samples:     c.tracker.Finalized(),
	}
	snap.MinSeq, snap.MaxSeq, snap.HasRange = c.tracker.SequenceRange()
	return snap
}

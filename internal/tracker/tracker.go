package tracker

import (
	"sort"
	"time"

	"udp-meter/internal/packet"
)

// EventKind classifies the outcome of a single observation.
type EventKind int

const (
	// FirstSeen means the sequence was not known and is now pending.
	FirstSeen EventKind = iota
	// AlreadyTracked means a non-terminating fragment of a known sequence.
	AlreadyTracked
	// Completed means the terminating fragment arrived and the delay was recorded.
	Completed
	// Duplicate means a terminating fragment for an already finalized sequence.
	Duplicate
)

func (k EventKind) String() string {
	switch k {
	case FirstSeen:
		return "first_seen"
	case AlreadyTracked:
		return "already_tracked"
	case Completed:
		return "completed"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Pending is the bookkeeping kept while a logical packet is incomplete.
type Pending struct {
	SenderTimestamp float64
	FirstSeen       time.Time
}

// Event is returned by Observe.
type Event struct {
	Kind     EventKind
	Sequence uint32
	// New is set when this observation inserted the sequence. A lone
	// terminating fragment is both New and Completed.
	New     bool
	Delay   time.Duration
	Pending Pending
}

// Sample is one finalized delay measurement.
type Sample struct {
	Sequence    uint32
	Delay       time.Duration
	CompletedAt time.Time // local arrival of the terminating fragment
}

type record struct {
	pending     Pending
	delay       time.Duration
	completedAt time.Time
	finalized   bool
}

// Tracker maps sequence numbers to arrival records. Entries are never
// removed. A Tracker is owned by a single goroutine; it is not safe for
// concurrent use.
type Tracker struct {
	records   map[uint32]*record
	completed int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		records: make(map[uint32]*record),
	}
}

// Observe records the arrival of one fragment at local time now.
func (t *Tracker) Observe(h packet.Header, now time.Time) Event {
	rec, known := t.records[h.Sequence]
	if !known {
		rec = &record{pending: Pending{SenderTimestamp: h.SenderTimestamp, FirstSeen: now}}
		t.records[h.Sequence] = rec
		if !h.IsLast() {
			return Event{Kind: FirstSeen, Sequence: h.Sequence, New: true, Pending: rec.pending}
		}
	}

	if !h.IsLast() {
		return Event{Kind: AlreadyTracked, Sequence: h.Sequence}
	}

	if rec.finalized {
		return Event{Kind: Duplicate, Sequence: h.Sequence, Delay: rec.delay}
	}

	rec.delay = now.Sub(rec.pending.FirstSeen)
	rec.completedAt = now
	rec.finalized = true
	t.completed++

	return Event{
		Kind:     Completed,
		Sequence: h.Sequence,
		New:      !known,
		Delay:    rec.delay,
		Pending:  rec.pending,
	}
}

// Len returns the number of distinct sequences observed.
func (t *Tracker) Len() int {
	return len(t.records)
}

// Completed returns the number of finalized sequences.
func (t *Tracker) Completed() int {
	return t.completed
}

// PendingCount returns the number of sequences still waiting for their last fragment.
func (t *Tracker) PendingCount() int {
	return len(t.records) - t.completed
}

// SequenceRange returns the first and last sequence of the smallest window,
// modulo 2^32, that covers every observed sequence. When the sequence
// counter wrapped during the session, lowest is numerically above highest
// and highest-lowest+1 still counts the window in uint32 arithmetic.
// ok is false when nothing was observed.
func (t *Tracker) SequenceRange() (lowest, highest uint32, ok bool) {
	if len(t.records) == 0 {
		return 0, 0, false
	}

	seqs := make([]uint32, 0, len(t.records))
	for seq := range t.records {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	// The window excludes the widest gap between neighbours, starting
	// with the gap that wraps from the numerically highest sequence.
	n := len(seqs)
	lowest, highest = seqs[0], seqs[n-1]
	widest := seqs[0] - seqs[n-1]
	for i := 1; i < n; i++ {
		if gap := seqs[i] - seqs[i-1]; gap > widest {
			widest = gap
			lowest, highest = seqs[i], seqs[i-1]
		}
	}
	return lowest, highest, true
}

// Finalized returns all finalized samples sorted by sequence ascending.
func (t *Tracker) Finalized() []Sample {
	samples := make([]Sample, 0, t.completed)
	for seq, rec := range t.records {
		if rec.finalized {
			samples = append(samples, Sample{Sequence: seq, Delay: rec.delay, CompletedAt: rec.completedAt})
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Sequence < samples[j].Sequence })
	return samples
}

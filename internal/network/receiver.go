package network

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"udp-meter/internal/packet"
	"udp-meter/internal/stats"
	"udp-meter/internal/tracker"
)

const (
	maxDatagramSize     = 65535
	defaultPollInterval = 100 * time.Millisecond
)

// Recorder receives a copy of every datagram, e.g. to write a capture file.
type Recorder interface {
	Record(data []byte, from, to net.Addr, at time.Time) error
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithTransmitter enables pong replies on completed packets.
func WithTransmitter(tx PriorityTransmitter) Option {
	return func(r *Receiver) {
		r.transmitter = tx
	}
}

// WithRecorder tees received datagrams into rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Receiver) {
		r.recorder = rec
	}
}

// WithPollInterval bounds how long a single read blocks before the stop
// signal is checked again.
func WithPollInterval(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithClock overrides the local clock used to timestamp arrivals.
func WithClock(now func() time.Time) Option {
	return func(r *Receiver) {
		r.now = now
	}
}

// Receiver is the receive loop bound to one UDP socket.
type Receiver struct {
	conn         net.PacketConn
	collector    *stats.Collector
	transmitter  PriorityTransmitter
	recorder     Recorder
	pollInterval time.Duration
	now          func() time.Time
	buf          []byte
}

// NewReceiver creates a receive loop reading from conn into collector.
func NewReceiver(conn net.PacketConn, collector *stats.Collector, opts ...Option) *Receiver {
	r := &Receiver{
		conn:         conn,
		collector:    collector,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		buf:          make([]byte, maxDatagramSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WaitFirst blocks until the first datagram arrives and processes it. Its
// arrival time is the origin of the measurement window. It waits forever
// unless ctx is cancelled.
func (r *Receiver) WaitFirst(ctx context.Context) (time.Time, error) {
	for {
		got, at, err := r.poll(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if got {
			return at, nil
		}
	}
}

// Run processes datagrams until ctx is cancelled. It returns nil on a normal
// stop and an error only when the socket can no longer be read.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if _, _, err := r.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// poll reads at most one datagram. got is false when the read deadline
// passed without traffic.
func (r *Receiver) poll(ctx context.Context) (got bool, at time.Time, err error) {
	if err := ctx.Err(); err != nil {
		return false, time.Time{}, err
	}

	if err := r.conn.SetReadDeadline(time.Now().Add(r.pollInterval)); err != nil {
		return false, time.Time{}, err
	}

	n, from, err := r.conn.ReadFrom(r.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, time.Time{}, nil
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return false, time.Time{}, err
		}
		log.WithError(err).Debug("Error reading from UDP")
		return false, time.Time{}, nil
	}

	at = r.now()
	r.handle(r.buf[:n], from, at)
	return true, at, nil
}

func (r *Receiver) handle(data []byte, from net.Addr, at time.Time) {
	if r.recorder != nil {
		if err := r.recorder.Record(data, from, r.conn.LocalAddr(), at); err != nil {
			log.WithError(err).Debug("Failed to record datagram")
		}
	}

	obs, err := r.collector.Record(data, at)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"from": from,
			"len":  len(data),
		}).Debug("Skipping malformed datagram")
		return
	}

	if !obs.Tracked || obs.Event.Kind != tracker.Completed || r.transmitter == nil {
		return
	}

	r.sendPong(data, from, obs)
}

func (r *Receiver) sendPong(data []byte, from net.Addr, obs stats.Observation) {
	src, err := udpAddr(from)
	if err != nil {
		r.collector.RecordPong(err)
		log.WithError(err).WithField("from", from).Debug("Cannot address pong")
		return
	}

	reply, err := packet.EncodeRTTReply(data, obs.Event.Delay.Seconds())
	if err != nil {
		r.collector.RecordPong(err)
		return
	}

	dst := PongAddr(src, obs.Header)
	err = r.transmitter.SendPriority(reply, dst)
	r.collector.RecordPong(err)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"seq": obs.Header.Sequence,
			"dst": dst,
		}).Debug("Pong dropped")
	}
}

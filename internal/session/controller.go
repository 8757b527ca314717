package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/transport/v3"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"udp-meter/internal/capture"
	"udp-meter/internal/config"
	"udp-meter/internal/network"
	"udp-meter/internal/stats"
)

var (
	// ErrBind is returned when the listen socket cannot be bound.
	ErrBind = errors.New("failed to bind listen socket")
	// ErrNoTraffic is returned when the session is interrupted before the
	// first datagram arrived.
	ErrNoTraffic = errors.New("interrupted before any datagram arrived")
)

// Option configures a Controller.
type Option func(*Controller)

// WithNet replaces the operating system network, e.g. with a vnet.
func WithNet(nw transport.Net) Option {
	return func(c *Controller) {
		c.nw = nw
	}
}

// WithDuration overrides the configured measurement window.
func WithDuration(d time.Duration) Option {
	return func(c *Controller) {
		c.duration = d
	}
}

// Controller runs one timed measurement session.
type Controller struct {
	cfg       *config.Config
	nw        transport.Net
	duration  time.Duration
	collector *stats.Collector

	conn     transport.UDPConn
	tx       network.PriorityTransmitter
	capture  *capture.Writer
	receiver *network.Receiver
}

// NewController creates a session controller for cfg.
func NewController(cfg *config.Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		duration:  cfg.Duration(),
		collector: stats.NewCollector(cfg.Measurement.Jitter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collector returns the session's collector. Its counters can be read while
// the session runs.
func (c *Controller) Collector() *stats.Collector {
	return c.collector
}

// LocalAddr returns the bound listen address, nil when not open.
func (c *Controller) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Open binds the listen socket and prepares the pong transmitter and the
// capture file. Run calls it when it has not been called yet.
func (c *Controller) Open() (err error) {
	if c.conn != nil {
		return nil
	}

	if c.nw == nil {
		if c.nw, err = network.DefaultNet(); err != nil {
			return err
		}
	}

	conn, err := network.Listen(c.nw, c.cfg.Listen.Address, c.cfg.Listen.Port)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}
	c.conn = conn

	defer func() {
		if err != nil {
			err = multierr.Append(err, c.Close())
		}
	}()

	opts := []network.Option{network.WithPollInterval(c.cfg.PollInterval())}

	if c.cfg.Measurement.RTT {
		tx, err := network.NewTransmitter(c.nw, c.cfg.RTT.Transmitter, c.cfg.RTT.TOS)
		if err != nil {
			return fmt.Errorf("failed to create pong transmitter: %w", err)
		}
		c.tx = tx
		opts = append(opts, network.WithTransmitter(tx))
		log.WithFields(log.Fields{
			"tos":         fmt.Sprintf("%#x", c.cfg.RTT.TOS),
			"transmitter": fmt.Sprintf("%T", tx),
		}).Info("Pong replies enabled")
	}

	if c.cfg.Capture.PcapFile != "" {
		w, err := capture.NewWriter(c.cfg.Capture.PcapFile)
		if err != nil {
			return err
		}
		c.capture = w
		opts = append(opts, network.WithRecorder(w))
	}

	c.receiver = network.NewReceiver(conn, c.collector, opts...)
	return nil
}

// Run measures for the configured duration, starting at the first received
// datagram, and returns the reduced result. Cancelling ctx ends the window
// early; the elapsed window is then reduced instead.
func (c *Controller) Run(ctx context.Context) (res *stats.Result, err error) {
	if err := c.Open(); err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	log.WithField("local_addr", c.conn.LocalAddr()).Info("Waiting for first datagram")

	start, err := c.receiver.WaitFirst(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrNoTraffic
		}
		return nil, fmt.Errorf("failed waiting for first datagram: %w", err)
	}
	c.collector.MarkStart(start)
	log.WithField("duration", c.duration).Info("First datagram received, measuring")

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		wg      conc.WaitGroup
		loopErr error
	)
	wg.Go(func() {
		loopErr = c.receiver.Run(loopCtx)
	})

	window := c.duration
	timer := time.NewTimer(c.duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		window = time.Since(start)
		log.WithField("elapsed", window).Info("Measurement interrupted")
	}
	timer.Stop()

	stop()
	wg.Wait()

	c.collector.Finish(time.Now())
	res = stats.Reduce(c.collector.Snapshot(), window, stats.ReduceOptions{
		SendInterval: c.cfg.SendInterval(),
	})

	if loopErr != nil {
		return res, fmt.Errorf("receive loop stopped early: %w", loopErr)
	}
	return res, nil
}

// Close releases the socket, the transmitter and the capture file.
func (c *Controller) Close() error {
	var err error
	if c.conn != nil {
		err = multierr.Append(err, ignoreClosed(c.conn.Close()))
		c.conn = nil
	}
	if c.tx != nil {
		err = multierr.Append(err, ignoreClosed(c.tx.Close()))
		c.tx = nil
	}
	if c.capture != nil {
		err = multierr.Append(err, c.capture.Close())
		c.capture = nil
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

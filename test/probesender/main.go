// Probe sender for end-to-end testing of the UDP meter.
// Sends a timed burst of fragmented probe packets, listens for pongs on the
// source port + 1024 and prints one "seq rtt" line per pong.
//
// Usage:
//
//	go run ./test/probesender --target 127.0.0.1:5201 [--count 100] [--fragments 2]
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"udp-meter/internal/packet"
)

type probeSender struct {
	target    *net.UDPAddr
	count     int
	fragments int
	size      int
	interval  time.Duration

	conn *net.UDPConn
	pong *net.UDPConn

	mu     sync.Mutex
	sentAt map[uint32]time.Time

	stats struct {
		sent  int
		pongs int
	}
}

func newProbeSender(target string, srcPort int) (*probeSender, error) {
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("invalid target %s: %w", target, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: srcPort})
	if err != nil {
		return nil, fmt.Errorf("failed to bind probe socket: %w", err)
	}

	port := conn.LocalAddr().(*net.UDPAddr).Port
	pong, err := net.ListenUDP("udp4", &net.UDPAddr{Port: packet.PongPort(uint16(port))})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind pong socket: %w", err)
	}

	return &probeSender{
		target: dst,
		conn:   conn,
		pong:   pong,
		sentAt: make(map[uint32]time.Time),
	}, nil
}

func (p *probeSender) sourcePort() uint16 {
	return uint16(p.conn.LocalAddr().(*net.UDPAddr).Port)
}

// send emits one logical packet. Fragments go out with decreasing offsets so
// the terminating fragment (offset 0) is last.
func (p *probeSender) send(seq uint32) error {
	now := time.Now()
	p.mu.Lock()
	p.sentAt[seq] = now
	p.mu.Unlock()

	payload := make([]byte, p.size)
	for offset := p.fragments - 1; offset >= 0; offset-- {
		h := packet.Header{
			Sequence:        seq,
			FragmentOffset:  uint16(offset),
			PayloadLength:   uint16(p.size),
			SourcePort:      p.sourcePort(),
			SenderTimestamp: float64(now.UnixNano()) / 1e9,
		}
		if _, err := p.conn.WriteToUDP(append(h.Encode(), payload...), p.target); err != nil {
			return err
		}
	}
	p.stats.sent++
	return nil
}

func (p *probeSender) readPongs(ctx context.Context) {
	buf := make([]byte, 65535)
	for ctx.Err() == nil {
		_ = p.pong.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := p.pong.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		at := time.Now()

		h, err := packet.Decode(buf[:n])
		if err != nil {
			log.WithError(err).Debug("Ignoring malformed pong")
			continue
		}

		p.mu.Lock()
		sent, ok := p.sentAt[h.Sequence]
		p.mu.Unlock()
		if !ok {
			continue
		}
		p.stats.pongs++
		// SenderTimestamp carries the receiver's delay in pongs
		fmt.Printf("%d %.3f\n", h.Sequence, float64(at.Sub(sent))/float64(time.Millisecond))
		log.WithFields(log.Fields{
			"seq":      h.Sequence,
			"delay_ms": h.SenderTimestamp * 1000,
		}).Debug("Pong received")
	}
}

func (p *probeSender) run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	readCtx, stopReading := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		p.readPongs(readCtx)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

loop:
	for seq := uint32(1); int(seq) <= p.count; seq++ {
		if err := p.send(seq); err != nil {
			log.WithError(err).WithField("seq", seq).Warn("Send failed")
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	// let the last pongs arrive
	time.Sleep(500 * time.Millisecond)
	stopReading()
	wg.Wait()
	return nil
}

func (p *probeSender) close() {
	p.conn.Close()
	p.pong.Close()
}

func main() {
	target := flag.String("target", "127.0.0.1:5201", "Meter address")
	srcPort := flag.Int("port", 0, "Local source port (0 picks one)")
	count := flag.Int("count", 100, "Number of logical packets")
	fragments := flag.Int("fragments", 2, "Datagrams per logical packet")
	size := flag.Int("size", 1000, "Payload bytes per datagram")
	interval := flag.Duration("interval", 10*time.Millisecond, "Delay between logical packets")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *fragments < 1 {
		log.Fatal("fragments must be >= 1")
	}

	p, err := newProbeSender(*target, *srcPort)
	if err != nil {
		log.Fatalf("Probe sender error: %v", err)
	}
	defer p.close()
	p.count, p.fragments, p.size, p.interval = *count, *fragments, *size, *interval

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Shutting down...")
		cancel()
	}()

	log.WithFields(log.Fields{
		"target":      p.target,
		"source_port": p.sourcePort(),
		"pong_port":   packet.PongPort(p.sourcePort()),
	}).Info("Sending probes")

	if err := p.run(ctx); err != nil {
		log.Fatalf("Probe sender error: %v", err)
	}
	log.Infof("Stats: sent=%d pongs=%d", p.stats.sent, p.stats.pongs)
}

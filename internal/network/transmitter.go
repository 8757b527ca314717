package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/pion/transport/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"udp-meter/internal/packet"
)

// Transmitter modes accepted by NewTransmitter.
const (
	ModeAuto   = "auto"
	ModePlain  = "plain"
	ModeNative = "native"
)

// ErrNativeUnavailable is returned when the platform has no priority-tagged send.
var ErrNativeUnavailable = errors.New("native priority transmit not available")

// PriorityTransmitter sends pong datagrams back to the sender.
type PriorityTransmitter interface {
	SendPriority(payload []byte, dst *net.UDPAddr) error
	Close() error
}

// PlainTransmitter sends from an ephemeral UDP socket whose TOS byte is
// configured once at setup.
type PlainTransmitter struct {
	conn transport.UDPConn
	tos  int
}

// NewPlainTransmitter opens the pong socket. A zero tos leaves the system
// default marking.
func NewPlainTransmitter(nw transport.Net, tos int) (*PlainTransmitter, error) {
	conn, err := nw.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("failed to open pong socket: %w", err)
	}

	if tos != 0 {
		if err := ipv4.NewPacketConn(conn).SetTOS(tos); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set TOS %#x on pong socket: %w", tos, err)
		}
	}

	return &PlainTransmitter{conn: conn, tos: tos}, nil
}

// SendPriority writes payload to dst.
func (t *PlainTransmitter) SendPriority(payload []byte, dst *net.UDPAddr) error {
	if _, err := t.conn.WriteTo(payload, dst); err != nil {
		return fmt.Errorf("failed to send pong to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the address pongs are sent from.
func (t *PlainTransmitter) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close closes the pong socket.
func (t *PlainTransmitter) Close() error {
	return t.conn.Close()
}

// NewTransmitter resolves the pong transmitter once at startup.
func NewTransmitter(nw transport.Net, mode string, tos int) (PriorityTransmitter, error) {
	switch mode {
	case ModePlain:
		return NewPlainTransmitter(nw, tos)
	case ModeNative:
		return newNativeTransmitter(nw, tos)
	case ModeAuto, "":
		tx, err := newNativeTransmitter(nw, tos)
		if err == nil {
			return tx, nil
		}
		log.WithError(err).Debug("Native priority transmit unavailable, using plain socket")
		return NewPlainTransmitter(nw, tos)
	default:
		return nil, fmt.Errorf("unknown transmitter mode: %s", mode)
	}
}

// PongAddr returns where the pong for a datagram from src must be sent.
func PongAddr(src *net.UDPAddr, h packet.Header) *net.UDPAddr {
	return &net.UDPAddr{IP: src.IP, Port: packet.PongPort(h.SourcePort), Zone: src.Zone}
}
